// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package consent decides when a user has to be asked for consent and
// remembers the consent they gave.
package consent

import (
	"context"
	"fmt"
	"slices"

	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go Service

// Service manages remembered consent.
type Service interface {
	// RequiresConsent reports whether the user has to be shown the consent
	// page for scopes.
	RequiresConsent(ctx context.Context, subject *model.Subject, client *model.Client, scopes []string) (bool, error)

	// UpdateConsent remembers scopes for subject and client. An empty scope
	// list forgets the remembered consent.
	UpdateConsent(ctx context.Context, subject *model.Subject, client *model.Client, scopes []string) error

	// RevokeConsent forgets the remembered consent of subject for clientID.
	RevokeConsent(ctx context.Context, subjectID, clientID string) error
}

// DefaultService is the Service backed by a grants.UserConsentStore.
type DefaultService struct {
	store grants.UserConsentStore
	clock clock.PassiveClock
}

// NewService returns a DefaultService.
func NewService(store grants.UserConsentStore, clk clock.PassiveClock) *DefaultService {
	return &DefaultService{store: store, clock: clk}
}

// RequiresConsent implements Service. Consent is always required when the
// client requires it and offline_access is requested, and otherwise whenever
// the remembered consent does not cover every requested scope.
func (s *DefaultService) RequiresConsent(
	ctx context.Context,
	subject *model.Subject,
	client *model.Client,
	scopes []string,
) (bool, error) {
	if !client.RequireConsent {
		logger.Debugw("client does not require consent", "clientID", client.ClientID)
		return false, nil
	}
	if len(scopes) == 0 {
		return false, nil
	}
	if !client.AllowRememberConsent {
		return true, nil
	}
	if slices.Contains(scopes, model.ScopeOfflineAccess) {
		logger.Debugw("offline_access requested, consent required", "clientID", client.ClientID)
		return true, nil
	}
	if !subject.IsAuthenticated() {
		return true, nil
	}

	remembered, err := s.store.GetUserConsent(ctx, subject.SubjectID, client.ClientID)
	if err != nil {
		return false, fmt.Errorf("failed to get remembered consent: %w", err)
	}
	if remembered == nil {
		return true, nil
	}
	if remembered.Expiration != nil && !s.clock.Now().Before(*remembered.Expiration) {
		logger.Debugw("remembered consent expired", "clientID", client.ClientID)
		if err := s.store.RemoveUserConsent(ctx, subject.SubjectID, client.ClientID); err != nil {
			return false, fmt.Errorf("failed to remove expired consent: %w", err)
		}
		return true, nil
	}

	for _, scope := range scopes {
		if !slices.Contains(remembered.Scopes, scope) {
			return true, nil
		}
	}
	return false, nil
}

// UpdateConsent implements Service. It does nothing for clients that do not
// allow remembering consent.
func (s *DefaultService) UpdateConsent(
	ctx context.Context,
	subject *model.Subject,
	client *model.Client,
	scopes []string,
) error {
	if !client.AllowRememberConsent {
		return nil
	}
	if !subject.IsAuthenticated() {
		return fmt.Errorf("remembering consent requires a subject")
	}

	if len(scopes) == 0 {
		logger.Debugw("clearing remembered consent", "clientID", client.ClientID)
		return s.store.RemoveUserConsent(ctx, subject.SubjectID, client.ClientID)
	}

	now := s.clock.Now()
	remembered := &model.Consent{
		SubjectID:    subject.SubjectID,
		ClientID:     client.ClientID,
		Scopes:       slices.Clone(scopes),
		CreationTime: now,
	}
	if client.ConsentLifetime > 0 {
		expiration := now.Add(client.ConsentLifetime)
		remembered.Expiration = &expiration
	}

	logger.Debugw("remembering consent", "clientID", client.ClientID, "scopes", scopes)
	return s.store.StoreUserConsent(ctx, remembered)
}

// RevokeConsent implements Service.
func (s *DefaultService) RevokeConsent(ctx context.Context, subjectID, clientID string) error {
	return s.store.RemoveUserConsent(ctx, subjectID, clientID)
}

var _ Service = (*DefaultService)(nil)

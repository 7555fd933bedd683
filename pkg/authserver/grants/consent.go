// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"fmt"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/storage"
)

// UserConsentStore persists remembered consent, one record per subject and
// client.
type UserConsentStore interface {
	// StoreUserConsent creates or replaces the consent.
	StoreUserConsent(ctx context.Context, consent *model.Consent) error

	// GetUserConsent returns the consent, or nil when none is remembered.
	GetUserConsent(ctx context.Context, subjectID, clientID string) (*model.Consent, error)

	// RemoveUserConsent forgets the consent.
	RemoveUserConsent(ctx context.Context, subjectID, clientID string) error
}

// ConsentStore is the default UserConsentStore.
type ConsentStore struct {
	typed typedStore[model.Consent]
}

// NewConsentStore returns a ConsentStore over store.
func NewConsentStore(store storage.GrantStore) *ConsentStore {
	return &ConsentStore{typed: newTypedStore[model.Consent](store, storage.UserConsentGrantType)}
}

// StoreUserConsent implements UserConsentStore.
func (s *ConsentStore) StoreUserConsent(ctx context.Context, consent *model.Consent) error {
	if consent.SubjectID == "" || consent.ClientID == "" {
		return fmt.Errorf("consent requires a subject id and a client id")
	}

	rec := record{
		handle:       ConsentHandle(consent.SubjectID, consent.ClientID),
		clientID:     consent.ClientID,
		subjectID:    consent.SubjectID,
		creationTime: consent.CreationTime,
		expiration:   consent.Expiration,
	}
	return s.typed.put(ctx, rec, consent)
}

// GetUserConsent implements UserConsentStore.
func (s *ConsentStore) GetUserConsent(ctx context.Context, subjectID, clientID string) (*model.Consent, error) {
	return s.typed.get(ctx, ConsentHandle(subjectID, clientID))
}

// RemoveUserConsent implements UserConsentStore.
func (s *ConsentStore) RemoveUserConsent(ctx context.Context, subjectID, clientID string) error {
	return s.typed.remove(ctx, ConsentHandle(subjectID, clientID))
}

// RemoveUserConsents forgets every consent of subjectID, narrowed to
// clientID when set.
func (s *ConsentStore) RemoveUserConsents(ctx context.Context, subjectID, clientID string) error {
	return s.typed.removeAll(ctx, subjectID, clientID)
}

var _ UserConsentStore = (*ConsentStore)(nil)

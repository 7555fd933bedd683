// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_refresh.go -package=mocks -source=refresh.go RefreshTokenService

// ErrRefreshTokenReused is returned when a one-time refresh token was already
// redeemed by a concurrent or earlier request.
var ErrRefreshTokenReused = errors.New("refresh token already used")

// RefreshTokenService creates and updates refresh tokens.
type RefreshTokenService interface {
	// CreateRefreshToken persists a refresh token bound to accessToken and
	// returns its handle.
	CreateRefreshToken(ctx context.Context, subject *model.Subject, accessToken *model.Token, client *model.Client) (string, error)

	// UpdateRefreshToken applies the client's usage and expiration policy to
	// the token stored under handle and returns the handle to hand back to
	// the client, which differs from handle after a rotation.
	UpdateRefreshToken(ctx context.Context, handle string, rt *model.RefreshToken, client *model.Client) (string, error)
}

// Lifecycle is the default RefreshTokenService.
type Lifecycle struct {
	store  grants.RefreshTokenStore
	events events.Service
	clock  clock.PassiveClock
}

// NewLifecycle returns a Lifecycle.
func NewLifecycle(store grants.RefreshTokenStore, evts events.Service, clk clock.PassiveClock) *Lifecycle {
	if evts == nil {
		evts = events.NopService{}
	}
	return &Lifecycle{store: store, events: evts, clock: clk}
}

// CreateRefreshToken implements RefreshTokenService.
func (l *Lifecycle) CreateRefreshToken(
	ctx context.Context,
	subject *model.Subject,
	accessToken *model.Token,
	client *model.Client,
) (string, error) {
	lifetime := client.AbsoluteRefreshTokenLifetime
	if client.RefreshTokenExpiration == model.RefreshTokenExpirationSliding {
		lifetime = client.SlidingRefreshTokenLifetime
		if client.AbsoluteRefreshTokenLifetime > 0 && lifetime > client.AbsoluteRefreshTokenLifetime {
			lifetime = client.AbsoluteRefreshTokenLifetime
		}
	}

	rt := &model.RefreshToken{
		CreationTime: l.clock.Now(),
		Lifetime:     lifetime,
		AccessToken:  accessToken,
		Version:      1,
	}
	handle, err := l.store.StoreRefreshToken(ctx, rt)
	if err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	subjectID := accessToken.SubjectID()
	if subject != nil {
		subjectID = subject.SubjectID
	}
	l.raise(ctx, events.RefreshTokenCreated(client.ClientID, subjectID, lifetime))
	return handle, nil
}

// UpdateRefreshToken implements RefreshTokenService.
//
// One-time tokens are taken from the store atomically before a new handle is
// minted, so two concurrent redemptions of one handle cannot both rotate it.
// Sliding tokens have their lifetime extended by the sliding increment, capped
// at the absolute lifetime. Nothing is persisted when neither rule applies.
func (l *Lifecycle) UpdateRefreshToken(
	ctx context.Context,
	handle string,
	rt *model.RefreshToken,
	client *model.Client,
) (string, error) {
	needsCreate := false
	needsUpdate := false

	if client.RefreshTokenUsage == model.RefreshTokenUsageOneTimeOnly {
		taken, err := l.store.TakeRefreshToken(ctx, handle)
		if err != nil {
			return "", fmt.Errorf("failed to remove refresh token: %w", err)
		}
		if taken == nil {
			logger.Warnw("one-time refresh token redeemed twice", "clientID", client.ClientID)
			return "", ErrRefreshTokenReused
		}
		needsCreate = true
	}

	if client.RefreshTokenExpiration == model.RefreshTokenExpirationSliding {
		rt.Lifetime = slidingLifetime(rt.CreationTime, l.clock.Now(), client)
		needsUpdate = true
	}

	switch {
	case needsCreate:
		rt.Version++
		newHandle, err := l.store.StoreRefreshToken(ctx, rt)
		if err != nil {
			return "", fmt.Errorf("failed to store refresh token: %w", err)
		}
		l.raise(ctx, events.RefreshTokenRotated(client.ClientID, rt.SubjectID(), rt.Version))
		return newHandle, nil
	case needsUpdate:
		if err := l.store.UpdateRefreshToken(ctx, handle, rt); err != nil {
			return "", fmt.Errorf("failed to update refresh token: %w", err)
		}
		l.raise(ctx, events.RefreshTokenExtended(client.ClientID, rt.SubjectID(), rt.Lifetime))
	}
	return handle, nil
}

// slidingLifetime is the age of a token created at created plus the sliding
// increment, never exceeding the absolute lifetime when one is set.
func slidingLifetime(created, now time.Time, client *model.Client) time.Duration {
	lifetime := now.Sub(created) + client.SlidingRefreshTokenLifetime
	if client.AbsoluteRefreshTokenLifetime > 0 && lifetime > client.AbsoluteRefreshTokenLifetime {
		lifetime = client.AbsoluteRefreshTokenLifetime
	}
	return lifetime
}

func (l *Lifecycle) raise(ctx context.Context, evt *events.Event) {
	if err := l.events.Raise(ctx, evt); err != nil {
		logger.Warnw("failed to raise event", "event", evt.Name, "error", err)
	}
}

var _ RefreshTokenService = (*Lifecycle)(nil)

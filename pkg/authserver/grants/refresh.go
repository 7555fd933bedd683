// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"fmt"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/storage"
)

//go:generate mockgen -destination=mocks/mock_refresh_token_store.go -package=mocks -source=refresh.go RefreshTokenStore

// RefreshTokenStore persists refresh tokens.
type RefreshTokenStore interface {
	// StoreRefreshToken persists token under a new handle and returns it.
	StoreRefreshToken(ctx context.Context, token *model.RefreshToken) (string, error)

	// UpdateRefreshToken overwrites the token stored under handle.
	UpdateRefreshToken(ctx context.Context, handle string, token *model.RefreshToken) error

	// GetRefreshToken returns the token, or nil when it does not exist.
	GetRefreshToken(ctx context.Context, handle string) (*model.RefreshToken, error)

	// TakeRefreshToken returns and removes the token atomically, or returns
	// nil when it does not exist. Concurrent takes of one handle succeed once.
	TakeRefreshToken(ctx context.Context, handle string) (*model.RefreshToken, error)

	// RemoveRefreshToken deletes the token.
	RemoveRefreshToken(ctx context.Context, handle string) error

	// RemoveRefreshTokens deletes every token of subjectID for clientID.
	RemoveRefreshTokens(ctx context.Context, subjectID, clientID string) error
}

// RefreshStore is the default RefreshTokenStore.
type RefreshStore struct {
	typed typedStore[model.RefreshToken]
}

// NewRefreshStore returns a RefreshStore over store.
func NewRefreshStore(store storage.GrantStore) *RefreshStore {
	return &RefreshStore{typed: newTypedStore[model.RefreshToken](store, storage.RefreshTokenGrantType)}
}

// StoreRefreshToken implements RefreshTokenStore.
func (s *RefreshStore) StoreRefreshToken(ctx context.Context, token *model.RefreshToken) (string, error) {
	handle := crypto.CreateHandle()
	if err := s.UpdateRefreshToken(ctx, handle, token); err != nil {
		return "", err
	}
	return handle, nil
}

// UpdateRefreshToken implements RefreshTokenStore.
func (s *RefreshStore) UpdateRefreshToken(ctx context.Context, handle string, token *model.RefreshToken) error {
	if token.AccessToken == nil {
		return fmt.Errorf("refresh token has no access token snapshot")
	}
	return s.typed.put(ctx, record{
		handle:       handle,
		clientID:     token.ClientID(),
		subjectID:    token.SubjectID(),
		sessionID:    token.SessionID(),
		creationTime: token.CreationTime,
		expiration:   expiresAfter(token.CreationTime, token.Lifetime),
	}, token)
}

// GetRefreshToken implements RefreshTokenStore.
func (s *RefreshStore) GetRefreshToken(ctx context.Context, handle string) (*model.RefreshToken, error) {
	return s.typed.get(ctx, handle)
}

// TakeRefreshToken implements RefreshTokenStore.
func (s *RefreshStore) TakeRefreshToken(ctx context.Context, handle string) (*model.RefreshToken, error) {
	return s.typed.take(ctx, handle)
}

// RemoveRefreshToken implements RefreshTokenStore.
func (s *RefreshStore) RemoveRefreshToken(ctx context.Context, handle string) error {
	return s.typed.remove(ctx, handle)
}

// RemoveRefreshTokens implements RefreshTokenStore.
func (s *RefreshStore) RemoveRefreshTokens(ctx context.Context, subjectID, clientID string) error {
	return s.typed.removeAll(ctx, subjectID, clientID)
}

var _ RefreshTokenStore = (*RefreshStore)(nil)

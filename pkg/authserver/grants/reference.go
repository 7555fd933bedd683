// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/storage"
)

// ReferenceTokenStore persists access tokens issued by reference.
type ReferenceTokenStore interface {
	// StoreReferenceToken persists token under a new handle and returns it.
	StoreReferenceToken(ctx context.Context, token *model.Token) (string, error)

	// GetReferenceToken returns the token, or nil when it does not exist.
	GetReferenceToken(ctx context.Context, handle string) (*model.Token, error)

	// RemoveReferenceToken deletes the token.
	RemoveReferenceToken(ctx context.Context, handle string) error

	// RemoveReferenceTokens deletes every token of subjectID for clientID.
	RemoveReferenceTokens(ctx context.Context, subjectID, clientID string) error
}

// ReferenceStore is the default ReferenceTokenStore.
type ReferenceStore struct {
	typed typedStore[model.Token]
}

// NewReferenceStore returns a ReferenceStore over store.
func NewReferenceStore(store storage.GrantStore) *ReferenceStore {
	return &ReferenceStore{typed: newTypedStore[model.Token](store, storage.ReferenceTokenGrantType)}
}

// StoreReferenceToken implements ReferenceTokenStore.
func (s *ReferenceStore) StoreReferenceToken(ctx context.Context, token *model.Token) (string, error) {
	handle := crypto.CreateHandle()
	err := s.typed.put(ctx, record{
		handle:       handle,
		clientID:     token.ClientID,
		subjectID:    token.SubjectID(),
		sessionID:    token.SessionID(),
		creationTime: token.CreationTime,
		expiration:   expiresAfter(token.CreationTime, token.Lifetime),
	}, token)
	if err != nil {
		return "", err
	}
	return handle, nil
}

// GetReferenceToken implements ReferenceTokenStore.
func (s *ReferenceStore) GetReferenceToken(ctx context.Context, handle string) (*model.Token, error) {
	return s.typed.get(ctx, handle)
}

// RemoveReferenceToken implements ReferenceTokenStore.
func (s *ReferenceStore) RemoveReferenceToken(ctx context.Context, handle string) error {
	return s.typed.remove(ctx, handle)
}

// RemoveReferenceTokens implements ReferenceTokenStore.
func (s *ReferenceStore) RemoveReferenceTokens(ctx context.Context, subjectID, clientID string) error {
	return s.typed.removeAll(ctx, subjectID, clientID)
}

var _ ReferenceTokenStore = (*ReferenceStore)(nil)

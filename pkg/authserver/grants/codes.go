// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/storage"
)

// AuthorizationCodeStore persists authorization codes.
type AuthorizationCodeStore interface {
	// StoreAuthorizationCode persists code under a new handle and returns it.
	StoreAuthorizationCode(ctx context.Context, code *model.AuthorizationCode) (string, error)

	// GetAuthorizationCode returns the code, or nil when it does not exist.
	GetAuthorizationCode(ctx context.Context, handle string) (*model.AuthorizationCode, error)

	// TakeAuthorizationCode returns and removes the code. Only one caller
	// can take a given code.
	TakeAuthorizationCode(ctx context.Context, handle string) (*model.AuthorizationCode, error)

	// RemoveAuthorizationCode deletes the code.
	RemoveAuthorizationCode(ctx context.Context, handle string) error
}

// CodeStore is the default AuthorizationCodeStore.
type CodeStore struct {
	typed typedStore[model.AuthorizationCode]
}

// NewCodeStore returns a CodeStore over store.
func NewCodeStore(store storage.GrantStore) *CodeStore {
	return &CodeStore{typed: newTypedStore[model.AuthorizationCode](store, storage.AuthorizationCodeGrantType)}
}

// StoreAuthorizationCode implements AuthorizationCodeStore.
func (s *CodeStore) StoreAuthorizationCode(ctx context.Context, code *model.AuthorizationCode) (string, error) {
	handle := crypto.CreateHandle()
	err := s.typed.put(ctx, record{
		handle:       handle,
		clientID:     code.ClientID,
		subjectID:    code.Subject.GetSubjectID(),
		sessionID:    code.SessionID,
		creationTime: code.CreationTime,
		expiration:   expiresAfter(code.CreationTime, code.Lifetime),
	}, code)
	if err != nil {
		return "", err
	}
	return handle, nil
}

// GetAuthorizationCode implements AuthorizationCodeStore.
func (s *CodeStore) GetAuthorizationCode(ctx context.Context, handle string) (*model.AuthorizationCode, error) {
	return s.typed.get(ctx, handle)
}

// TakeAuthorizationCode implements AuthorizationCodeStore.
func (s *CodeStore) TakeAuthorizationCode(ctx context.Context, handle string) (*model.AuthorizationCode, error) {
	return s.typed.take(ctx, handle)
}

// RemoveAuthorizationCode implements AuthorizationCodeStore.
func (s *CodeStore) RemoveAuthorizationCode(ctx context.Context, handle string) error {
	return s.typed.remove(ctx, handle)
}

// RemoveAuthorizationCodes deletes every code of subjectID for clientID.
func (s *CodeStore) RemoveAuthorizationCodes(ctx context.Context, subjectID, clientID string) error {
	return s.typed.removeAll(ctx, subjectID, clientID)
}

var _ AuthorizationCodeStore = (*CodeStore)(nil)

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/authcore/pkg/authserver/storage"
	"github.com/stacklok/authcore/pkg/logger"
)

// record describes one persisted item before serialization.
type record struct {
	handle       string
	clientID     string
	subjectID    string
	sessionID    string
	creationTime time.Time

	// expiration of nil means the grant never expires.
	expiration *time.Time

	// key overrides the key derived from handle when set.
	key string
}

// expiresAfter returns created+lifetime, or nil for a non-positive lifetime.
func expiresAfter(created time.Time, lifetime time.Duration) *time.Time {
	if lifetime <= 0 {
		return nil
	}
	exp := created.Add(lifetime)
	return &exp
}

// typedStore maps one grant type onto a storage.GrantStore.
// Lookups report missing, expired and undecodable grants as (nil, nil).
type typedStore[T any] struct {
	store     storage.GrantStore
	grantType storage.GrantType
}

func newTypedStore[T any](store storage.GrantStore, grantType storage.GrantType) typedStore[T] {
	return typedStore[T]{store: store, grantType: grantType}
}

func (s typedStore[T]) key(handle string) string {
	return HashKey(handle, s.grantType)
}

func (s typedStore[T]) put(ctx context.Context, rec record, item *T) error {
	data, err := Serialize(item)
	if err != nil {
		return err
	}

	key := rec.key
	if key == "" {
		key = s.key(rec.handle)
	}

	grant := &storage.PersistedGrant{
		Key:          key,
		Type:         s.grantType,
		ClientID:     rec.clientID,
		SubjectID:    rec.subjectID,
		SessionID:    rec.sessionID,
		CreationTime: rec.creationTime,
		Expiration:   rec.expiration,
		Data:         data,
	}

	if err := s.store.Store(ctx, grant); err != nil {
		return fmt.Errorf("failed to store %s: %w", s.grantType, err)
	}
	return nil
}

func (s typedStore[T]) get(ctx context.Context, handle string) (*T, error) {
	grant, err := s.store.Get(ctx, s.key(handle), s.grantType)
	return s.decode(ctx, grant, err)
}

func (s typedStore[T]) getByKey(ctx context.Context, key string) (*T, error) {
	grant, err := s.store.Get(ctx, key, s.grantType)
	return s.decode(ctx, grant, err)
}

func (s typedStore[T]) take(ctx context.Context, handle string) (*T, error) {
	grant, err := s.store.Take(ctx, s.key(handle), s.grantType)
	return s.decode(ctx, grant, err)
}

func (s typedStore[T]) remove(ctx context.Context, handle string) error {
	if err := s.store.Remove(ctx, s.key(handle), s.grantType); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.grantType, err)
	}
	return nil
}

func (s typedStore[T]) removeByKey(ctx context.Context, key string) error {
	if err := s.store.Remove(ctx, key, s.grantType); err != nil {
		return fmt.Errorf("failed to remove %s: %w", s.grantType, err)
	}
	return nil
}

func (s typedStore[T]) removeAll(ctx context.Context, subjectID, clientID string) error {
	filter := storage.Filter{SubjectID: subjectID, ClientID: clientID, Types: []storage.GrantType{s.grantType}}
	if err := s.store.RemoveAll(ctx, filter); err != nil {
		return fmt.Errorf("failed to remove %s grants: %w", s.grantType, err)
	}
	return nil
}

func (s typedStore[T]) decode(ctx context.Context, grant *storage.PersistedGrant, err error) (*T, error) {
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load %s: %w", s.grantType, err)
	}

	var item T
	if err := Deserialize(grant.Data, &item); err != nil {
		logger.Warnw("removing undecodable grant",
			"type", string(s.grantType),
			"clientID", grant.ClientID,
			"error", err,
		)
		_ = s.store.Remove(ctx, grant.Key, s.grantType)
		return nil, nil
	}
	return &item, nil
}

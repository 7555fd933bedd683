// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package storage provides the persisted grant store used by the
// authorization server for codes, tokens, device codes and consent.
//
// Callers hash natural keys before they reach the store, so a GrantStore
// never sees a plaintext handle.
package storage

//go:generate mockgen -destination=mocks/mock_grant_store.go -package=mocks -source=types.go GrantStore

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// GrantType tags the payload shape of a PersistedGrant.
type GrantType string

const (
	// AuthorizationCodeGrantType stores authorization codes.
	AuthorizationCodeGrantType GrantType = "authorization_code"

	// ReferenceTokenGrantType stores reference access tokens.
	ReferenceTokenGrantType GrantType = "reference_token"

	// RefreshTokenGrantType stores refresh tokens.
	RefreshTokenGrantType GrantType = "refresh_token"

	// UserConsentGrantType stores remembered consent.
	UserConsentGrantType GrantType = "user_consent"

	// DeviceCodeGrantType stores device authorization requests keyed by device code.
	DeviceCodeGrantType GrantType = "device_code"

	// UserCodeGrantType indexes device authorization requests by user code.
	UserCodeGrantType GrantType = "user_code"
)

// AllGrantTypes lists every grant type the store accepts.
var AllGrantTypes = []GrantType{
	AuthorizationCodeGrantType,
	ReferenceTokenGrantType,
	RefreshTokenGrantType,
	UserConsentGrantType,
	DeviceCodeGrantType,
	UserCodeGrantType,
}

// IsValid reports whether t is a known grant type.
func (t GrantType) IsValid() bool {
	return slices.Contains(AllGrantTypes, t)
}

// PersistedGrant is the storage envelope shared by every grant type.
type PersistedGrant struct {
	// Key is the hashed lookup key.
	Key string `json:"key"`

	// Type disambiguates the shape of Data.
	Type GrantType `json:"type"`

	// ClientID is the owning client.
	ClientID string `json:"client_id"`

	// SubjectID is the owning subject. Empty for client-only grants.
	SubjectID string `json:"subject_id,omitempty"`

	// SessionID is the login session that produced the grant, if any.
	SessionID string `json:"session_id,omitempty"`

	// CreationTime is when the grant was first created.
	CreationTime time.Time `json:"creation_time"`

	// Expiration is the absolute expiry. Nil means the grant never expires.
	Expiration *time.Time `json:"expiration,omitempty"`

	// Data is the serialized payload.
	Data []byte `json:"data"`
}

// IsExpired returns true if the grant has an expiration before now.
func (g *PersistedGrant) IsExpired(now time.Time) bool {
	return g.Expiration != nil && now.After(*g.Expiration)
}

// TTL returns the remaining lifetime relative to now. The second return
// value is false when the grant never expires.
func (g *PersistedGrant) TTL(now time.Time) (time.Duration, bool) {
	if g.Expiration == nil {
		return 0, false
	}
	return g.Expiration.Sub(now), true
}

// Clone returns a deep copy of the grant.
func (g *PersistedGrant) Clone() *PersistedGrant {
	if g == nil {
		return nil
	}
	c := *g
	if g.Expiration != nil {
		exp := *g.Expiration
		c.Expiration = &exp
	}
	c.Data = slices.Clone(g.Data)
	return &c
}

// Validate checks the fields every backend relies on. Errors wrap
// ErrInvalidGrant. Safe to call on a nil grant.
func (g *PersistedGrant) Validate() error {
	switch {
	case g == nil:
		return fmt.Errorf("%w: grant cannot be nil", ErrInvalidGrant)
	case g.Key == "":
		return fmt.Errorf("%w: grant key cannot be empty", ErrInvalidGrant)
	case !g.Type.IsValid():
		return fmt.Errorf("%w: unknown grant type %q", ErrInvalidGrant, g.Type)
	case g.ClientID == "":
		return fmt.Errorf("%w: grant client id cannot be empty", ErrInvalidGrant)
	}
	return nil
}

// Filter selects grants for bulk reads and removals. At least one of
// SubjectID or ClientID must be set; the remaining fields narrow the match.
type Filter struct {
	SubjectID string
	ClientID  string
	SessionID string

	// Types restricts the match to the listed grant types. Empty matches all.
	Types []GrantType
}

// Validate checks that the filter selects a bounded set of grants.
// Errors wrap ErrInvalidGrant.
func (f Filter) Validate() error {
	if f.SubjectID == "" && f.ClientID == "" {
		return fmt.Errorf("%w: filter requires a subject id or a client id", ErrInvalidGrant)
	}
	for _, t := range f.Types {
		if !t.IsValid() {
			return fmt.Errorf("%w: unknown grant type %q", ErrInvalidGrant, t)
		}
	}
	return nil
}

// Matches reports whether g satisfies every set field of the filter.
func (f Filter) Matches(g *PersistedGrant) bool {
	if f.SubjectID != "" && g.SubjectID != f.SubjectID {
		return false
	}
	if f.ClientID != "" && g.ClientID != f.ClientID {
		return false
	}
	if f.SessionID != "" && g.SessionID != f.SessionID {
		return false
	}
	if len(f.Types) > 0 && !slices.Contains(f.Types, g.Type) {
		return false
	}
	return true
}

// GrantStore persists grants under hashed keys.
//
// Get and Take return ErrNotFound for missing or expired grants and for
// grants stored under a different type. Remove and RemoveAll succeed when
// nothing matches.
type GrantStore interface {
	// Store creates or replaces the grant stored under grant.Key and grant.Type.
	Store(ctx context.Context, grant *PersistedGrant) error

	// Get returns the grant without removing it.
	Get(ctx context.Context, key string, grantType GrantType) (*PersistedGrant, error)

	// Take atomically returns and removes the grant. Of several concurrent
	// callers for the same key exactly one receives the grant.
	Take(ctx context.Context, key string, grantType GrantType) (*PersistedGrant, error)

	// Remove deletes the grant.
	Remove(ctx context.Context, key string, grantType GrantType) error

	// GetAll returns the live grants matching filter.
	GetAll(ctx context.Context, filter Filter) ([]*PersistedGrant, error)

	// RemoveAll deletes the grants matching filter.
	RemoveAll(ctx context.Context, filter Filter) error

	// Health checks that the backend is reachable.
	Health(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

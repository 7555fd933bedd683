// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package keys provides signing credentials for issued tokens and the
// validation keys published to relying parties.
package keys

import (
	"crypto"
	"errors"
	"time"

	autherrors "github.com/stacklok/authcore/pkg/errors"
)

// DefaultAlgorithm is used when no algorithm is configured.
const DefaultAlgorithm = "ES256"

// ErrNoSigningKey is returned when no credential matches the allowed
// algorithms. It is a configuration error and aborts the request.
var ErrNoSigningKey = autherrors.NewConfigurationError("no signing credential available", nil)

// IsNoSigningKey reports whether err is ErrNoSigningKey.
func IsNoSigningKey(err error) bool {
	return errors.Is(err, ErrNoSigningKey)
}

// SigningKeyData is a private signing key with its metadata.
type SigningKeyData struct {
	// KeyID is the unique identifier for this key (RFC 7638 thumbprint).
	KeyID string

	// Algorithm is the JWS algorithm (e.g., "ES256", "RS256").
	Algorithm string

	// Key is the private key used for signing.
	Key crypto.Signer

	// CreatedAt is when this key was generated or loaded.
	CreatedAt time.Time
}

// Public returns the verification half of the key.
func (k *SigningKeyData) Public() *PublicKeyData {
	return &PublicKeyData{
		KeyID:     k.KeyID,
		Algorithm: k.Algorithm,
		PublicKey: k.Key.Public(),
		CreatedAt: k.CreatedAt,
	}
}

func (k *SigningKeyData) clone() *SigningKeyData {
	c := *k
	return &c
}

// PublicKeyData is a validation key.
type PublicKeyData struct {
	KeyID     string
	Algorithm string
	PublicKey crypto.PublicKey
	CreatedAt time.Time
}

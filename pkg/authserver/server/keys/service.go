// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"fmt"
	"slices"

	"github.com/go-jose/go-jose/v4"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=service.go CredentialService

// CredentialService selects signing credentials and lists validation keys.
type CredentialService interface {
	// SigningCredentials returns the first credential whose algorithm is in
	// allowedAlgorithms. An empty list accepts any algorithm. ErrNoSigningKey
	// is returned when nothing matches.
	SigningCredentials(ctx context.Context, allowedAlgorithms []string) (*SigningKeyData, error)

	// ValidationKeys returns every key that verifies tokens issued by this
	// server.
	ValidationKeys(ctx context.Context) ([]*PublicKeyData, error)
}

// Service combines one or more key providers, typically one per algorithm.
// Providers are consulted in order; the first is the default credential.
type Service struct {
	providers []KeyProvider
}

// NewService returns a Service over providers.
func NewService(providers ...KeyProvider) *Service {
	return &Service{providers: providers}
}

// SigningCredentials implements CredentialService.
func (s *Service) SigningCredentials(ctx context.Context, allowedAlgorithms []string) (*SigningKeyData, error) {
	for _, p := range s.providers {
		key, err := p.SigningKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get signing key: %w", err)
		}
		if key == nil {
			continue
		}
		if len(allowedAlgorithms) == 0 || slices.Contains(allowedAlgorithms, key.Algorithm) {
			return key, nil
		}
	}
	return nil, ErrNoSigningKey
}

// ValidationKeys implements CredentialService. Keys are deduplicated by key id.
func (s *Service) ValidationKeys(ctx context.Context) ([]*PublicKeyData, error) {
	var (
		out  []*PublicKeyData
		seen = map[string]struct{}{}
	)
	for _, p := range s.providers {
		keys, err := p.PublicKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get public keys: %w", err)
		}
		for _, k := range keys {
			if _, dup := seen[k.KeyID]; dup {
				continue
			}
			seen[k.KeyID] = struct{}{}
			out = append(out, k)
		}
	}
	return out, nil
}

// JWKS renders validation keys as a JSON Web Key Set.
func JWKS(ctx context.Context, svc CredentialService) (*jose.JSONWebKeySet, error) {
	keys, err := svc.ValidationKeys(ctx)
	if err != nil {
		return nil, err
	}

	set := &jose.JSONWebKeySet{Keys: make([]jose.JSONWebKey, 0, len(keys))}
	for _, k := range keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       k.PublicKey,
			KeyID:     k.KeyID,
			Algorithm: k.Algorithm,
			Use:       "sig",
		})
	}
	return set, nil
}

var _ CredentialService = (*Service)(nil)

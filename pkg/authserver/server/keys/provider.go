// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"path/filepath"
	"sync"

	"k8s.io/utils/clock"

	servercrypto "github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/logger"
)

// KeyProvider supplies one signing key and the keys that verify it.
type KeyProvider interface {
	// SigningKey returns the current signing key.
	SigningKey(ctx context.Context) (*SigningKeyData, error)

	// PublicKeys returns every key that may have signed a live token.
	// During rotation this includes retired keys.
	PublicKeys(ctx context.Context) ([]*PublicKeyData, error)
}

// FileProvider serves keys loaded from PEM files at construction time.
type FileProvider struct {
	signingKey *SigningKeyData
	allKeys    []*SigningKeyData
}

// NewFileProvider loads the signing key and fallback keys from cfg.KeyDir.
func NewFileProvider(cfg Config) (*FileProvider, error) {
	return newFileProvider(cfg, clock.RealClock{})
}

func newFileProvider(cfg Config, clk clock.PassiveClock) (*FileProvider, error) {
	if cfg.SigningKeyFile == "" {
		return nil, fmt.Errorf("signing key file is required")
	}

	signingKey, err := loadKeyFromFile(filepath.Join(cfg.KeyDir, cfg.SigningKeyFile), cfg.Algorithm, clk)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}

	allKeys := []*SigningKeyData{signingKey}
	for _, filename := range cfg.FallbackKeyFiles {
		key, err := loadKeyFromFile(filepath.Join(cfg.KeyDir, filename), "", clk)
		if err != nil {
			return nil, fmt.Errorf("failed to load fallback key %s: %w", filename, err)
		}
		allKeys = append(allKeys, key)
	}

	logger.Debugw("loaded signing keys from disk",
		"keyID", signingKey.KeyID,
		"algorithm", signingKey.Algorithm,
		"fallbackCount", len(cfg.FallbackKeyFiles),
	)

	return &FileProvider{signingKey: signingKey, allKeys: allKeys}, nil
}

func loadKeyFromFile(keyPath, algorithm string, clk clock.PassiveClock) (*SigningKeyData, error) {
	signer, err := servercrypto.LoadSigningKey(keyPath)
	if err != nil {
		return nil, err
	}
	return keyDataFromSigner(signer, algorithm, clk)
}

func keyDataFromSigner(signer crypto.Signer, algorithm string, clk clock.PassiveClock) (*SigningKeyData, error) {
	params, err := servercrypto.DeriveSigningKeyParams(signer, "", algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key parameters: %w", err)
	}

	return &SigningKeyData{
		KeyID:     params.KeyID,
		Algorithm: params.Algorithm,
		Key:       params.Key,
		CreatedAt: clk.Now(),
	}, nil
}

// SigningKey returns a copy of the primary key.
func (p *FileProvider) SigningKey(_ context.Context) (*SigningKeyData, error) {
	return p.signingKey.clone(), nil
}

// PublicKeys returns the primary key followed by the fallback keys.
func (p *FileProvider) PublicKeys(_ context.Context) ([]*PublicKeyData, error) {
	pubKeys := make([]*PublicKeyData, 0, len(p.allKeys))
	for _, key := range p.allKeys {
		pubKeys = append(pubKeys, key.Public())
	}
	return pubKeys, nil
}

// GeneratingProvider creates an in-memory key on first use. Tokens signed
// with it do not survive a restart; use it for development and tests.
type GeneratingProvider struct {
	algorithm string
	clock     clock.PassiveClock

	mu  sync.Mutex
	key *SigningKeyData
}

// GeneratingProviderOption configures a GeneratingProvider.
type GeneratingProviderOption func(*GeneratingProvider)

// WithClock sets the clock used to stamp generated keys.
func WithClock(clk clock.PassiveClock) GeneratingProviderOption {
	return func(p *GeneratingProvider) {
		p.clock = clk
	}
}

// NewGeneratingProvider returns a provider for the given algorithm.
// An empty algorithm selects DefaultAlgorithm.
func NewGeneratingProvider(algorithm string, opts ...GeneratingProviderOption) *GeneratingProvider {
	if algorithm == "" {
		algorithm = DefaultAlgorithm
	}
	p := &GeneratingProvider{algorithm: algorithm, clock: clock.RealClock{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SigningKey returns the generated key, creating it on first call.
func (p *GeneratingProvider) SigningKey(_ context.Context) (*SigningKeyData, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.key == nil {
		key, err := p.generateKey()
		if err != nil {
			return nil, err
		}

		logger.Warnw("generated ephemeral signing key - tokens will be invalid after restart",
			"algorithm", key.Algorithm,
			"keyID", key.KeyID,
		)
		p.key = key
	}

	return p.key.clone(), nil
}

// PublicKeys returns the generated key's public half.
func (p *GeneratingProvider) PublicKeys(ctx context.Context) ([]*PublicKeyData, error) {
	key, err := p.SigningKey(ctx)
	if err != nil {
		return nil, err
	}
	return []*PublicKeyData{key.Public()}, nil
}

func (p *GeneratingProvider) generateKey() (*SigningKeyData, error) {
	privateKey, err := GeneratePrivateKey(p.algorithm)
	if err != nil {
		return nil, fmt.Errorf("failed to generate signing key: %w", err)
	}

	keyID, err := servercrypto.DeriveKeyID(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key ID: %w", err)
	}

	return &SigningKeyData{
		KeyID:     keyID,
		Algorithm: p.algorithm,
		Key:       privateKey,
		CreatedAt: p.clock.Now(),
	}, nil
}

// GeneratableAlgorithms lists the algorithms GeneratePrivateKey supports.
var GeneratableAlgorithms = []string{
	"ES256", "ES384", "ES512",
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"EdDSA",
}

// GeneratePrivateKey creates a new key suitable for algorithm.
func GeneratePrivateKey(algorithm string) (crypto.Signer, error) {
	switch algorithm {
	case "ES256":
		return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case "ES384":
		return ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case "ES512":
		return ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case "RS256", "RS384", "RS512", "PS256", "PS384", "PS512":
		return rsa.GenerateKey(rand.Reader, servercrypto.MinRSAKeyBits)
	case "EdDSA":
		_, key, err := ed25519.GenerateKey(rand.Reader)
		return key, err
	default:
		return nil, fmt.Errorf("unsupported algorithm for key generation: %s", algorithm)
	}
}

var (
	_ KeyProvider = (*FileProvider)(nil)
	_ KeyProvider = (*GeneratingProvider)(nil)
)

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"fmt"
	"slices"
)

// Config selects where signing keys come from. Exactly one source is used:
// a key directory, an AWS Secrets Manager secret, or (when neither is set)
// ephemeral keys generated in memory.
type Config struct {
	// KeyDir is the directory containing PEM-encoded private key files.
	// All key filenames are relative to this directory.
	KeyDir string `mapstructure:"key_dir" yaml:"key_dir,omitempty"`

	// SigningKeyFile is the filename of the primary signing key.
	SigningKeyFile string `mapstructure:"signing_key_file" yaml:"signing_key_file,omitempty"`

	// FallbackKeyFiles are published for verification only. Move a retired
	// signing key here until the tokens it signed have expired.
	FallbackKeyFiles []string `mapstructure:"fallback_key_files" yaml:"fallback_key_files,omitempty"`

	// Algorithm overrides the algorithm derived from the key, e.g. PS256 for
	// an RSA key. For generated keys it selects the key type.
	Algorithm string `mapstructure:"algorithm" yaml:"algorithm,omitempty"`

	// AdditionalAlgorithms generates extra ephemeral credentials so clients
	// restricted to other algorithms can be served. Development only.
	AdditionalAlgorithms []string `mapstructure:"additional_algorithms" yaml:"additional_algorithms,omitempty"`

	// SecretID is an AWS Secrets Manager secret holding the keys.
	SecretID string `mapstructure:"secret_id" yaml:"secret_id,omitempty"`

	// SecretRegion is the AWS region of SecretID.
	SecretRegion string `mapstructure:"secret_region" yaml:"secret_region,omitempty"`

	// SecretVersionStage defaults to AWSCURRENT.
	SecretVersionStage string `mapstructure:"secret_version_stage" yaml:"secret_version_stage,omitempty"`
}

// Validate checks that at most one key source is configured.
func (c *Config) Validate() error {
	if c.KeyDir != "" && c.SecretID != "" {
		return fmt.Errorf("key_dir and secret_id are mutually exclusive")
	}
	if c.KeyDir != "" && c.SigningKeyFile == "" {
		return fmt.Errorf("signing_key_file is required when key_dir is set")
	}
	return nil
}

// NewProviderFromConfig builds the primary key provider for cfg.
func NewProviderFromConfig(ctx context.Context, cfg Config) (KeyProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch {
	case cfg.KeyDir != "":
		return NewFileProvider(cfg)
	case cfg.SecretID != "":
		client, err := NewSecretsManagerClient(ctx, cfg.SecretRegion)
		if err != nil {
			return nil, err
		}
		return NewSecretsManagerProvider(ctx, client, cfg.SecretID, cfg.SecretVersionStage)
	default:
		// Ephemeral key (development only)
		return NewGeneratingProvider(cfg.Algorithm), nil
	}
}

// NewServiceFromConfig builds a CredentialService from cfg, adding one
// generated provider per additional algorithm.
func NewServiceFromConfig(ctx context.Context, cfg Config) (*Service, error) {
	primary, err := NewProviderFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	providers := []KeyProvider{primary}
	for _, alg := range cfg.AdditionalAlgorithms {
		if !slices.Contains(GeneratableAlgorithms, alg) {
			return nil, fmt.Errorf("additional algorithm %s cannot be generated", alg)
		}
		providers = append(providers, NewGeneratingProvider(alg))
	}
	return NewService(providers...), nil
}

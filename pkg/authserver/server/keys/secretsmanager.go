// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package keys

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"k8s.io/utils/clock"

	servercrypto "github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/logger"
)

// DefaultSecretVersionStage is the Secrets Manager stage read by default.
const DefaultSecretVersionStage = "AWSCURRENT"

// SecretsManagerClient is the subset of the Secrets Manager API used here,
// enabling mock injection for testing.
type SecretsManagerClient interface {
	GetSecretValue(
		ctx context.Context,
		params *secretsmanager.GetSecretValueInput,
		optFns ...func(*secretsmanager.Options),
	) (*secretsmanager.GetSecretValueOutput, error)
}

// secretPayload is the JSON form of a key secret. A secret holding a bare
// PEM block is treated as {"signing_key": <pem>}.
type secretPayload struct {
	SigningKey   string   `json:"signing_key"`
	Algorithm    string   `json:"algorithm,omitempty"`
	FallbackKeys []string `json:"fallback_keys,omitempty"`
}

// SecretsManagerProvider serves keys stored in an AWS Secrets Manager
// secret. The secret is read once at construction.
type SecretsManagerProvider struct {
	signingKey *SigningKeyData
	allKeys    []*SigningKeyData
}

// NewSecretsManagerClient creates a client using the default AWS credential
// chain. An empty region defers to the environment.
func NewSecretsManagerClient(ctx context.Context, region string) (SecretsManagerClient, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// NewSecretsManagerProvider reads secretID at versionStage and parses the keys.
func NewSecretsManagerProvider(
	ctx context.Context,
	client SecretsManagerClient,
	secretID, versionStage string,
) (*SecretsManagerProvider, error) {
	return newSecretsManagerProvider(ctx, client, secretID, versionStage, clock.RealClock{})
}

func newSecretsManagerProvider(
	ctx context.Context,
	client SecretsManagerClient,
	secretID, versionStage string,
	clk clock.PassiveClock,
) (*SecretsManagerProvider, error) {
	if secretID == "" {
		return nil, fmt.Errorf("secret id is required")
	}
	if versionStage == "" {
		versionStage = DefaultSecretVersionStage
	}

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(secretID),
		VersionStage: aws.String(versionStage),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching secret %s: %w", secretID, err)
	}

	var raw string
	switch {
	case out.SecretString != nil:
		raw = aws.ToString(out.SecretString)
	case len(out.SecretBinary) > 0:
		raw = string(out.SecretBinary)
	default:
		return nil, fmt.Errorf("secret %s has no payload", secretID)
	}

	payload, err := parseSecretPayload(raw)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", secretID, err)
	}

	signingKey, err := keyDataFromPEM(payload.SigningKey, payload.Algorithm, clk)
	if err != nil {
		return nil, fmt.Errorf("secret %s: signing key: %w", secretID, err)
	}

	allKeys := []*SigningKeyData{signingKey}
	for i, pemKey := range payload.FallbackKeys {
		key, err := keyDataFromPEM(pemKey, "", clk)
		if err != nil {
			return nil, fmt.Errorf("secret %s: fallback key [%d]: %w", secretID, i, err)
		}
		allKeys = append(allKeys, key)
	}

	logger.Debugw("loaded signing keys from AWS Secrets Manager",
		"secretID", secretID,
		"keyID", signingKey.KeyID,
		"algorithm", signingKey.Algorithm,
	)

	return &SecretsManagerProvider{signingKey: signingKey, allKeys: allKeys}, nil
}

func parseSecretPayload(raw string) (*secretPayload, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "-----BEGIN") {
		return &secretPayload{SigningKey: trimmed}, nil
	}

	var payload secretPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return nil, fmt.Errorf("payload is neither PEM nor JSON: %w", err)
	}
	if payload.SigningKey == "" {
		return nil, fmt.Errorf("payload has no signing_key")
	}
	return &payload, nil
}

func keyDataFromPEM(pemKey, algorithm string, clk clock.PassiveClock) (*SigningKeyData, error) {
	signer, err := servercrypto.ParseSigningKey([]byte(pemKey))
	if err != nil {
		return nil, err
	}
	return keyDataFromSigner(signer, algorithm, clk)
}

// SigningKey returns a copy of the primary key.
func (p *SecretsManagerProvider) SigningKey(_ context.Context) (*SigningKeyData, error) {
	return p.signingKey.clone(), nil
}

// PublicKeys returns the primary key followed by the fallback keys.
func (p *SecretsManagerProvider) PublicKeys(_ context.Context) ([]*PublicKeyData, error) {
	pubKeys := make([]*PublicKeyData, 0, len(p.allKeys))
	for _, key := range p.allKeys {
		pubKeys = append(pubKeys, key.Public())
	}
	return pubKeys, nil
}

var _ KeyProvider = (*SecretsManagerProvider)(nil)

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token_test

import (
	"context"
	"crypto"
	"encoding/json"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stacklok/authcore/pkg/authserver/claims"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/resources"
	servercrypto "github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/server/keys"
	"github.com/stacklok/authcore/pkg/authserver/storage"
	"github.com/stacklok/authcore/pkg/authserver/token"
)

const testIssuer = "https://issuer.example.com"

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type factoryFixture struct {
	factory    *token.Factory
	keys       *keys.Service
	references *grants.ReferenceStore
	clock      *clocktesting.FakeClock
}

func newFactoryFixture(t *testing.T, opts token.Options) *factoryFixture {
	t.Helper()

	clk := clocktesting.NewFakeClock(testNow)
	store := storage.NewMemoryStorage(storage.WithClock(clk))
	t.Cleanup(func() { _ = store.Close() })

	credentials := keys.NewService(keys.NewGeneratingProvider("ES256", keys.WithClock(clk)))
	references := grants.NewReferenceStore(store)
	if opts.Issuer == "" {
		opts.Issuer = testIssuer
	}

	return &factoryFixture{
		factory:    token.NewFactory(opts, claims.NewAssembler(claims.DefaultProfileService{}), credentials, references, clk),
		keys:       credentials,
		references: references,
		clock:      clk,
	}
}

func (f *factoryFixture) publicKeys(t *testing.T) []crypto.PublicKey {
	t.Helper()
	validation, err := f.keys.ValidationKeys(context.Background())
	require.NoError(t, err)
	out := make([]crypto.PublicKey, 0, len(validation))
	for _, k := range validation {
		out = append(out, k.PublicKey)
	}
	return out
}

func apiResources() *model.ResourceValidationResult {
	return &model.ResourceValidationResult{
		Scopes: []string{"api1"},
		Resources: model.Resources{
			APIScopes:    []model.APIScope{{Name: "api1", Enabled: true}},
			APIResources: []model.APIResource{{Name: "api1", Enabled: true, Scopes: []string{"api1"}}},
		},
	}
}

func openIDResources() *model.ResourceValidationResult {
	return &model.ResourceValidationResult{
		Scopes: []string{model.ScopeOpenID, model.ScopeProfile},
		Resources: model.Resources{
			IdentityResources: []model.IdentityResource{resources.OpenID(), resources.Profile()},
		},
	}
}

func alice() *model.Subject {
	return &model.Subject{
		SubjectID:             "alice",
		AuthTime:              testNow.Add(-time.Minute),
		IdentityProvider:      model.LocalIdentityProvider,
		AuthenticationMethods: []string{"pwd"},
		Claims:                []model.Claim{model.NewClaim(model.ClaimName, "Alice")},
	}
}

func TestFactory_ClientCredentialsAccessToken(t *testing.T) {
	t.Parallel()

	f := newFactoryFixture(t, token.Options{})
	client := model.NewClient("svc")

	tok, err := f.factory.CreateAccessToken(context.Background(), &token.CreationRequest{
		Client:    client,
		Resources: apiResources(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"api1"}, tok.Audiences)
	assert.Empty(t, tok.SubjectID())

	jwt, err := f.factory.Encode(context.Background(), tok)
	require.NoError(t, err)

	parsed, err := jose.ParseSigned(jwt, []jose.SignatureAlgorithm{jose.ES256})
	require.NoError(t, err)
	require.Len(t, parsed.Signatures, 1)
	assert.Equal(t, token.JWTTypeAccessToken, parsed.Signatures[0].Protected.ExtraHeaders[jose.HeaderType])

	body, err := parsed.Verify(f.publicKeys(t)[0])
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, testIssuer, payload["iss"])
	assert.Equal(t, "svc", payload["client_id"])
	assert.Equal(t, []any{"api1"}, payload["scope"])
	assert.Equal(t, "api1", payload["aud"])
	assert.InDelta(t, float64(testNow.Unix()), payload["iat"], 0)
	assert.NotContains(t, payload, "sub")
}

func TestFactory_StaticAudience(t *testing.T) {
	t.Parallel()

	f := newFactoryFixture(t, token.Options{Issuer: testIssuer + "/", EmitStaticAudienceClaim: true})
	tok, err := f.factory.CreateAccessToken(context.Background(), &token.CreationRequest{
		Client:    model.NewClient("svc"),
		Resources: apiResources(),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"api1", testIssuer + "/resources"}, tok.Audiences)
}

func TestFactory_AccessTokenOverrides(t *testing.T) {
	t.Parallel()

	f := newFactoryFixture(t, token.Options{})
	client := model.NewClient("svc")
	client.IncludeJwtID = true

	tok, err := f.factory.CreateAccessToken(context.Background(), &token.CreationRequest{
		Subject:             alice(),
		Client:              client,
		Resources:           apiResources(),
		SessionID:           "sess-1",
		AccessTokenLifetime: 10 * time.Minute,
		AccessTokenType:     model.AccessTokenTypeReference,
	})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, tok.Lifetime)
	assert.Equal(t, model.AccessTokenTypeReference, tok.AccessTokenType)
	assert.Equal(t, "sess-1", tok.SessionID())
	assert.Equal(t, "alice", tok.SubjectID())
	assert.Len(t, model.ClaimValues(tok.Claims, model.ClaimJwtID), 1)
}

func TestFactory_IdentityTokenVerifiesWithOIDC(t *testing.T) {
	t.Parallel()

	f := newFactoryFixture(t, token.Options{})
	client := model.NewClient("web")
	ctx := context.Background()

	accessToken := "access-token-value"
	code := "authorization-code-value"

	tok, err := f.factory.CreateIdentityToken(ctx, &token.CreationRequest{
		Subject:                  alice(),
		Client:                   client,
		Resources:                openIDResources(),
		IncludeAllIdentityClaims: true,
		Nonce:                    "n-0S6_WzA2Mj",
		SessionID:                "sess-1",
		AccessTokenToHash:        accessToken,
		AuthorizationCodeToHash:  code,
		StateHash:                "state-hash",
	})
	require.NoError(t, err)

	wantOrder := []string{
		model.ClaimNonce, model.ClaimIssuedAt, model.ClaimAccessTokenHash,
		model.ClaimAuthorizationCode, model.ClaimStateHash, model.ClaimSessionID, model.ClaimSubject,
	}
	for i, claimType := range wantOrder {
		assert.Equal(t, claimType, tok.Claims[i].Type)
	}

	wantCHash, err := servercrypto.CreateHashClaimValue(code, "ES256")
	require.NoError(t, err)
	assert.Equal(t, []string{wantCHash}, model.ClaimValues(tok.Claims, model.ClaimAuthorizationCode))

	raw, err := f.factory.Encode(ctx, tok)
	require.NoError(t, err)

	verifier := oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: f.publicKeys(t)}, &oidc.Config{
		ClientID:             "web",
		SupportedSigningAlgs: []string{oidc.ES256},
		Now:                  f.clock.Now,
	})
	idToken, err := verifier.Verify(ctx, raw)
	require.NoError(t, err)
	assert.Equal(t, "alice", idToken.Subject)
	assert.Equal(t, "n-0S6_WzA2Mj", idToken.Nonce)
	require.NoError(t, idToken.VerifyAccessToken(accessToken))
	require.Error(t, idToken.VerifyAccessToken("some-other-token"))

	var profile struct {
		Name string `json:"name"`
		SID  string `json:"sid"`
	}
	require.NoError(t, idToken.Claims(&profile))
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, "sess-1", profile.SID)
}

func TestFactory_EncodeReferenceToken(t *testing.T) {
	t.Parallel()

	f := newFactoryFixture(t, token.Options{})
	client := model.NewClient("svc")
	client.AccessTokenType = model.AccessTokenTypeReference
	ctx := context.Background()

	tok, err := f.factory.CreateAccessToken(ctx, &token.CreationRequest{
		Subject:   alice(),
		Client:    client,
		Resources: apiResources(),
	})
	require.NoError(t, err)

	handle, err := f.factory.Encode(ctx, tok)
	require.NoError(t, err)
	assert.NotContains(t, handle, ".", "reference handles are opaque")

	stored, err := f.references.GetReferenceToken(ctx, handle)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "alice", stored.SubjectID())
	assert.Equal(t, []string{"api1"}, stored.Scopes())
}

func TestFactory_MissingSigningKeyIsFatal(t *testing.T) {
	t.Parallel()

	f := newFactoryFixture(t, token.Options{})
	client := model.NewClient("web")
	client.AllowedIdentityTokenSigningAlgorithms = []string{"RS256"}

	_, err := f.factory.CreateIdentityToken(context.Background(), &token.CreationRequest{
		Subject:           alice(),
		Client:            client,
		Resources:         openIDResources(),
		AccessTokenToHash: "at",
	})
	require.Error(t, err)
	assert.True(t, keys.IsNoSigningKey(err))

	tok, err := f.factory.CreateIdentityToken(context.Background(), &token.CreationRequest{
		Subject:   alice(),
		Client:    client,
		Resources: openIDResources(),
	})
	require.NoError(t, err)
	_, err = f.factory.Encode(context.Background(), tok)
	assert.True(t, keys.IsNoSigningKey(err))
}

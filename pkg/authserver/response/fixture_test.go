// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response_test

import (
	"context"
	"crypto"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/stacklok/authcore/pkg/authserver/claims"
	"github.com/stacklok/authcore/pkg/authserver/clients"
	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/resources"
	"github.com/stacklok/authcore/pkg/authserver/response"
	"github.com/stacklok/authcore/pkg/authserver/server/keys"
	"github.com/stacklok/authcore/pkg/authserver/storage"
	"github.com/stacklok/authcore/pkg/authserver/token"
)

const (
	testIssuer      = "https://issuer.example.com"
	testRedirectURI = "https://app.example.com/callback"
	testSessionID   = "session-1"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	clock      *clocktesting.FakeClock
	keys       *keys.Service
	clients    *clients.MemoryStore
	resources  *resources.MemoryStore
	codes      *grants.CodeStore
	refresh    *grants.RefreshStore
	references *grants.ReferenceStore
	devices    *grants.DeviceStore
	grants     *grants.Service
	factory    *token.Factory

	authorize *response.AuthorizeResponseGenerator
	tokens    *response.TokenResponseGenerator
	device    *response.DeviceAuthorizationGenerator
	revoker   *response.Revoker
	inspector *response.Introspector
}

func newClients(t *testing.T) *clients.MemoryStore {
	t.Helper()

	svc := model.NewClient("svc")
	svc.AllowedGrantTypes = []string{model.GrantTypeClientCredentials}
	svc.AllowedScopes = []string{"api1"}

	web := model.NewClient("web")
	web.AllowedGrantTypes = []string{model.GrantTypeAuthorizationCodeWithPKCE}
	web.RedirectURIs = []string{testRedirectURI}
	web.AllowedScopes = []string{model.ScopeOpenID, model.ScopeProfile, "api1"}
	web.AllowOfflineAccess = true

	hybrid := model.NewClient("hybrid")
	hybrid.AllowedGrantTypes = []string{model.GrantTypeHybrid}
	hybrid.RedirectURIs = []string{testRedirectURI}
	hybrid.AllowedScopes = []string{model.ScopeOpenID, model.ScopeProfile, "api1"}

	spa := model.NewClient("spa")
	spa.AllowedGrantTypes = []string{model.GrantTypeImplicit}
	spa.RedirectURIs = []string{testRedirectURI}
	spa.AllowedScopes = []string{model.ScopeOpenID, model.ScopeProfile, "api1"}
	spa.RequireClientSecret = false

	tv := model.NewClient("tv")
	tv.AllowedGrantTypes = []string{model.GrantTypeDeviceCode}
	tv.AllowedScopes = []string{model.ScopeOpenID, "api1"}
	tv.RequireClientSecret = false

	ref := model.NewClient("ref")
	ref.AllowedGrantTypes = []string{model.GrantTypeClientCredentials}
	ref.AllowedScopes = []string{"api1"}
	ref.AccessTokenType = model.AccessTokenTypeReference

	store, err := clients.NewMemoryStore(svc, web, hybrid, spa, tv, ref)
	require.NoError(t, err)
	return store
}

func newFixture(t *testing.T, opts ...response.AuthorizeOption) *fixture {
	t.Helper()

	clk := clocktesting.NewFakeClock(testNow)
	store := storage.NewMemoryStorage(storage.WithClock(clk))
	t.Cleanup(func() { _ = store.Close() })

	resourceStore, err := resources.NewMemoryStore(
		[]model.IdentityResource{resources.OpenID(), resources.Profile()},
		[]model.APIResource{{Name: "api1", Enabled: true, Scopes: []string{"api1"}}},
		[]model.APIScope{{Name: "api1", Enabled: true}},
	)
	require.NoError(t, err)

	f := &fixture{
		clock:      clk,
		keys:       keys.NewService(keys.NewGeneratingProvider("ES256", keys.WithClock(clk))),
		clients:    newClients(t),
		resources:  resourceStore,
		codes:      grants.NewCodeStore(store),
		refresh:    grants.NewRefreshStore(store),
		references: grants.NewReferenceStore(store),
		devices:    grants.NewDeviceStore(store),
		grants:     grants.NewService(store),
	}
	profile := claims.DefaultProfileService{}
	f.factory = token.NewFactory(token.Options{Issuer: testIssuer}, claims.NewAssembler(profile), f.keys, f.references, clk)

	f.authorize = response.NewAuthorizeResponseGenerator(f.factory, f.codes, nil, clk, opts...)
	f.tokens = response.NewTokenResponseGenerator(response.TokenGeneratorConfig{
		Factory:       f.factory,
		Refresh:       token.NewLifecycle(f.refresh, nil, clk),
		Codes:         f.codes,
		RefreshTokens: f.refresh,
		Devices:       f.devices,
		Clients:       f.clients,
		Resources:     resourceStore,
		Profile:       profile,
		Clock:         clk,
	})
	f.device = response.NewDeviceAuthorizationGenerator(f.devices, nil, clk,
		response.WithVerificationURI("https://issuer.example.com/device"))
	f.revoker = response.NewRevoker(f.refresh, f.references, nil, response.WithGrantService(f.grants))
	f.inspector = response.NewIntrospector(testIssuer, f.keys, f.references, f.refresh, clk)
	return f
}

func (f *fixture) client(t *testing.T, id string) *model.Client {
	t.Helper()
	c, err := f.clients.FindEnabledClientByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (f *fixture) validate(t *testing.T, client *model.Client, scopes ...string) *model.ResourceValidationResult {
	t.Helper()
	v, err := resources.Validate(context.Background(), f.resources, client, scopes)
	require.NoError(t, err)
	return v
}

func (f *fixture) verifier(t *testing.T, clientID string) *oidc.IDTokenVerifier {
	t.Helper()
	validation, err := f.keys.ValidationKeys(context.Background())
	require.NoError(t, err)
	publicKeys := make([]crypto.PublicKey, 0, len(validation))
	for _, k := range validation {
		publicKeys = append(publicKeys, k.PublicKey)
	}
	return oidc.NewVerifier(testIssuer, &oidc.StaticKeySet{PublicKeys: publicKeys}, &oidc.Config{
		ClientID:             clientID,
		SupportedSigningAlgs: []string{oidc.ES256},
		Now:                  f.clock.Now,
	})
}

type recordingSink struct {
	mu     sync.Mutex
	events []*events.Event
}

func (s *recordingSink) Persist(_ context.Context, evt *events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

func (s *recordingSink) recorded() []*events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*events.Event(nil), s.events...)
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

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ory/fosite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/authcore/pkg/authserver/claims"
	clientmocks "github.com/stacklok/authcore/pkg/authserver/clients/mocks"
	"github.com/stacklok/authcore/pkg/authserver/grants"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/response"
	keymocks "github.com/stacklok/authcore/pkg/authserver/server/keys/mocks"
	"github.com/stacklok/authcore/pkg/authserver/storage"
	storagemocks "github.com/stacklok/authcore/pkg/authserver/storage/mocks"
	"github.com/stacklok/authcore/pkg/authserver/token"
	tokenmocks "github.com/stacklok/authcore/pkg/authserver/token/mocks"
	autherrors "github.com/stacklok/authcore/pkg/errors"
)

func (f *fixture) tokenConfig() response.TokenGeneratorConfig {
	return response.TokenGeneratorConfig{
		Factory:       f.factory,
		Refresh:       token.NewLifecycle(f.refresh, nil, f.clock),
		Codes:         f.codes,
		RefreshTokens: f.refresh,
		Devices:       f.devices,
		Clients:       f.clients,
		Resources:     f.resources,
		Profile:       claims.DefaultProfileService{},
		Clock:         f.clock,
	}
}

func TestProcess_ClientRemovedAfterGrant(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)

	clientStore := clientmocks.NewMockStore(ctrl)
	clientStore.EXPECT().FindEnabledClientByID(gomock.Any(), "web").Return(nil, nil)

	cfg := f.tokenConfig()
	cfg.Clients = clientStore
	generator := response.NewTokenResponseGenerator(cfg)

	code := f.authorizeCode(t, model.ScopeOpenID)
	_, err := generator.Process(context.Background(), &model.ValidatedTokenRequest{
		GrantType:               model.GrantTypeAuthorizationCode,
		Client:                  f.client(t, "web"),
		AuthorizationCodeHandle: code.handle,
		RedirectURI:             testRedirectURI,
		CodeVerifier:            code.verifier,
	})
	require.Error(t, err)
	assert.True(t, autherrors.IsConfiguration(err))
}

func TestProcess_ConcurrentRefreshLosesRace(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)

	resp, err := f.redeemCode(t, f.authorizeCode(t, model.ScopeOpenID, model.ScopeOfflineAccess))
	require.NoError(t, err)

	refresh := tokenmocks.NewMockRefreshTokenService(ctrl)
	refresh.EXPECT().
		UpdateRefreshToken(gomock.Any(), resp.RefreshToken, gomock.Any(), gomock.Any()).
		Return("", token.ErrRefreshTokenReused)

	cfg := f.tokenConfig()
	cfg.Refresh = refresh
	_, err = response.NewTokenResponseGenerator(cfg).Process(context.Background(), &model.ValidatedTokenRequest{
		GrantType:          model.GrantTypeRefreshToken,
		Client:             f.client(t, "web"),
		RefreshTokenHandle: resp.RefreshToken,
	})
	require.ErrorIs(t, err, fosite.ErrInvalidGrant)
}

func TestProcess_LostRefreshRaceStoresNoReferenceToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)

	resp, err := f.redeemCode(t, f.authorizeCode(t, model.ScopeOpenID, model.ScopeOfflineAccess))
	require.NoError(t, err)

	refresh := tokenmocks.NewMockRefreshTokenService(ctrl)
	refresh.EXPECT().
		UpdateRefreshToken(gomock.Any(), resp.RefreshToken, gomock.Any(), gomock.Any()).
		Return("", token.ErrRefreshTokenReused)

	// No expectations: persisting a reference token fails the test.
	references := grants.NewReferenceStore(storagemocks.NewMockGrantStore(ctrl))

	cfg := f.tokenConfig()
	cfg.Factory = token.NewFactory(token.Options{Issuer: testIssuer},
		claims.NewAssembler(claims.DefaultProfileService{}), f.keys, references, f.clock)
	cfg.Refresh = refresh
	_, err = response.NewTokenResponseGenerator(cfg).Process(context.Background(), &model.ValidatedTokenRequest{
		GrantType:          model.GrantTypeRefreshToken,
		Client:             f.client(t, "web"),
		RefreshTokenHandle: resp.RefreshToken,
		AccessTokenType:    model.AccessTokenTypeReference,
	})
	require.ErrorIs(t, err, fosite.ErrInvalidGrant)
}

func TestIntrospect_ValidationKeysUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)

	svc := f.client(t, "svc")
	resp, err := f.tokens.Process(context.Background(), &model.ValidatedTokenRequest{
		GrantType:          model.GrantTypeClientCredentials,
		Client:             svc,
		ValidatedResources: f.validate(t, svc, "api1"),
	})
	require.NoError(t, err)

	credentials := keymocks.NewMockCredentialService(ctrl)
	credentials.EXPECT().ValidationKeys(gomock.Any()).Return(nil, errors.New("kms unavailable"))

	inspector := response.NewIntrospector(testIssuer, credentials, f.references, f.refresh, f.clock)
	_, err = inspector.Introspect(context.Background(), &response.IntrospectionRequest{Token: resp.AccessToken})
	require.ErrorContains(t, err, "kms unavailable")
}

func TestIntrospect_StorageUnavailable(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctrl := gomock.NewController(t)

	store := storagemocks.NewMockGrantStore(ctrl)
	store.EXPECT().
		Get(gomock.Any(), gomock.Any(), storage.ReferenceTokenGrantType).
		Return(nil, errors.New("connection refused"))

	inspector := response.NewIntrospector(testIssuer, f.keys,
		grants.NewReferenceStore(store), grants.NewRefreshStore(store), f.clock)
	_, err := inspector.Introspect(context.Background(), &response.IntrospectionRequest{Token: "opaque-handle"})
	require.ErrorContains(t, err, "connection refused")
}

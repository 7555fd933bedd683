// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response_test

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/url"
	"testing"

	"github.com/ory/fosite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/response"
	servercrypto "github.com/stacklok/authcore/pkg/authserver/server/crypto"
)

func (f *fixture) authorizeRequest(t *testing.T, clientID, responseType string, scopes ...string) *model.ValidatedAuthorizeRequest {
	t.Helper()
	client := f.client(t, clientID)
	return &model.ValidatedAuthorizeRequest{
		Client:             client,
		ClientID:           client.ClientID,
		Subject:            alice(),
		ResponseType:       responseType,
		RedirectURI:        testRedirectURI,
		State:              "af0ifjsldkj",
		Nonce:              "n-0S6_WzA2Mj",
		ValidatedResources: f.validate(t, client, scopes...),
		RequestedScopes:    scopes,
		SessionID:          testSessionID,
	}
}

func TestCreateResponse_HybridCodeHash(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := f.authorizeRequest(t, "hybrid", model.ResponseTypeCodeIDToken, model.ScopeOpenID, model.ScopeProfile)
	resp, err := f.authorize.CreateResponse(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)
	require.NotEmpty(t, resp.IdentityToken)
	assert.Empty(t, resp.AccessToken)

	idToken, err := f.verifier(t, "hybrid").Verify(context.Background(), resp.IdentityToken)
	require.NoError(t, err)

	var hashes struct {
		CodeHash string `json:"c_hash"`
		Name     string `json:"name"`
	}
	require.NoError(t, idToken.Claims(&hashes))
	want, err := servercrypto.CreateHashClaimValue(resp.Code, "ES256")
	require.NoError(t, err)
	assert.Equal(t, want, hashes.CodeHash)
	assert.Equal(t, "Alice", hashes.Name, "no access token is issued, so profile claims go into the id_token")

	values := resp.ToValues()
	assert.Equal(t, resp.Code, values.Get("code"))
	assert.Equal(t, "af0ifjsldkj", values.Get("state"))
	assert.Empty(t, values.Get("token_type"))
}

func TestCreateResponse_HybridCodeSingleUse(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := f.authorizeRequest(t, "hybrid", model.ResponseTypeCodeIDTokenToken, model.ScopeOpenID, "api1")
	resp, err := f.authorize.CreateResponse(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Code)
	require.NotEmpty(t, resp.IdentityToken)
	require.NotEmpty(t, resp.AccessToken)

	redeem := &model.ValidatedTokenRequest{
		GrantType:               model.GrantTypeAuthorizationCode,
		Client:                  req.Client,
		AuthorizationCodeHandle: resp.Code,
		RedirectURI:             testRedirectURI,
	}
	tokens, err := f.tokens.Process(context.Background(), redeem)
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.IdentityToken)
	assert.Equal(t, "openid api1", tokens.Scope)

	_, err = f.tokens.Process(context.Background(), redeem)
	require.ErrorIs(t, err, fosite.ErrInvalidGrant, "a hybrid code is redeemed once")
}

func TestCreateResponse_ImplicitIdentityClaims(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		responseType string
		wantName     string
		wantAccess   bool
	}{
		{name: "id_token only", responseType: model.ResponseTypeIDToken, wantName: "Alice"},
		{name: "id_token token", responseType: model.ResponseTypeIDTokenToken, wantAccess: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)

			req := f.authorizeRequest(t, "spa", tt.responseType, model.ScopeOpenID, model.ScopeProfile)
			resp, err := f.authorize.CreateResponse(context.Background(), req)
			require.NoError(t, err)
			assert.Empty(t, resp.Code)
			assert.Equal(t, tt.wantAccess, resp.AccessToken != "")

			idToken, err := f.verifier(t, "spa").Verify(context.Background(), resp.IdentityToken)
			require.NoError(t, err)
			var claims struct {
				Name string `json:"name"`
			}
			require.NoError(t, idToken.Claims(&claims))
			assert.Equal(t, tt.wantName, claims.Name)

			if tt.wantAccess {
				require.NoError(t, idToken.VerifyAccessToken(resp.AccessToken))
				values := resp.ToValues()
				assert.Equal(t, "Bearer", values.Get("token_type"))
				assert.Equal(t, "3600", values.Get("expires_in"))
			}
		})
	}
}

func TestCreateResponse_SessionState(t *testing.T) {
	t.Parallel()
	f := newFixture(t, response.WithSessionStateSalt(func() string { return "c2FsdA" }))

	resp, err := f.authorize.CreateResponse(context.Background(),
		f.authorizeRequest(t, "spa", model.ResponseTypeIDToken, model.ScopeOpenID))
	require.NoError(t, err)

	want := response.SessionState("spa", "https://app.example.com", testSessionID, "c2FsdA")
	assert.Equal(t, want, resp.SessionState)
	assert.Equal(t, want, resp.ToValues().Get("session_state"))

	again, err := f.authorize.CreateResponse(context.Background(),
		f.authorizeRequest(t, "spa", model.ResponseTypeIDToken, model.ScopeOpenID))
	require.NoError(t, err)
	assert.Equal(t, resp.SessionState, again.SessionState, "same inputs give the same session_state")

	noSession := f.authorizeRequest(t, "spa", model.ResponseTypeIDToken, model.ScopeOpenID)
	noSession.SessionID = ""
	resp, err = f.authorize.CreateResponse(context.Background(), noSession)
	require.NoError(t, err)
	assert.Empty(t, resp.SessionState)
}

func TestSessionState(t *testing.T) {
	t.Parallel()

	sum := sha256.Sum256([]byte("spa" + "https://app.example.com" + testSessionID + "c2FsdA"))
	want := base64.RawURLEncoding.EncodeToString(sum[:]) + ".c2FsdA"
	assert.Equal(t, want, response.SessionState("spa", "https://app.example.com", testSessionID, "c2FsdA"))
}

func TestCreateResponse_Rejections(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	req := f.authorizeRequest(t, "spa", "code bogus", model.ScopeOpenID)
	_, err := f.authorize.CreateResponse(context.Background(), req)
	require.ErrorIs(t, err, fosite.ErrUnsupportedResponseType)

	req = f.authorizeRequest(t, "spa", model.ResponseTypeIDToken, model.ScopeOpenID)
	req.RedirectURI = "https://evil.example.com/callback"
	_, err = f.authorize.CreateResponse(context.Background(), req)
	require.ErrorIs(t, err, fosite.ErrInvalidRequest)
}

func TestCreateResponse_RaisesTokenIssued(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sink := &recordingSink{}
	gen := response.NewAuthorizeResponseGenerator(f.factory, f.codes,
		events.NewService([]events.Sink{sink}, events.WithClock(f.clock)), f.clock)

	_, err := gen.CreateResponse(context.Background(),
		f.authorizeRequest(t, "spa", model.ResponseTypeIDTokenToken, model.ScopeOpenID))
	require.NoError(t, err)

	recorded := sink.recorded()
	require.Len(t, recorded, 1)
	assert.Equal(t, events.NameTokenIssuedSuccess, recorded[0].Name)
	assert.Equal(t, events.EndpointAuthorize, recorded[0].Endpoint)
	assert.Equal(t, "alice", recorded[0].SubjectID)
}

func TestErrorResponse(t *testing.T) {
	t.Parallel()

	got := response.ErrorResponse("login_required", "", "st")
	assert.Equal(t, url.Values{"error": {"login_required"}, "state": {"st"}}, got)

	got = response.ErrorResponse("access_denied", "no", "")
	assert.Equal(t, url.Values{"error": {"access_denied"}, "error_description": {"no"}}, got)
}

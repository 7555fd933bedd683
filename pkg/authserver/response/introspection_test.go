// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package response_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/response"
)

func TestIntrospect_JWT(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := f.redeemCode(t, f.authorizeCode(t, model.ScopeOpenID, "api1"))
	require.NoError(t, err)

	got, err := f.inspector.Introspect(context.Background(), &response.IntrospectionRequest{Token: resp.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, true, got["active"])
	assert.Equal(t, "alice", got["sub"])
	assert.Equal(t, testIssuer, got["iss"])

	got, err = f.inspector.Introspect(context.Background(), &response.IntrospectionRequest{Token: resp.IdentityToken})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"active": false}, got, "identity tokens are not introspectable")

	f.clock.Step(time.Hour)
	got, err = f.inspector.Introspect(context.Background(), &response.IntrospectionRequest{Token: resp.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"active": false}, got)
}

func TestIntrospect_ForeignIssuer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := f.redeemCode(t, f.authorizeCode(t, model.ScopeOpenID))
	require.NoError(t, err)

	other := response.NewIntrospector("https://other.example.com", f.keys, f.references, f.refresh, f.clock)
	got, err := other.Introspect(context.Background(), &response.IntrospectionRequest{Token: resp.AccessToken})
	require.NoError(t, err)
	assert.Equal(t, false, got["active"])
}

func TestIntrospect_ReferenceToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	handle := f.referenceToken(t)

	got, err := f.inspector.Introspect(context.Background(), &response.IntrospectionRequest{
		Token: handle, TokenTypeHint: response.TokenTypeHintAccessToken,
	})
	require.NoError(t, err)
	assert.Equal(t, true, got["active"])
	assert.Equal(t, "ref", got["client_id"])
	assert.Equal(t, "api1", got["scope"])

	f.clock.Step(time.Hour)
	got, err = f.inspector.Introspect(context.Background(), &response.IntrospectionRequest{Token: handle})
	require.NoError(t, err)
	assert.Equal(t, false, got["active"])
}

func TestIntrospect_RefreshToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp, err := f.redeemCode(t, f.authorizeCode(t, model.ScopeOpenID, model.ScopeOfflineAccess))
	require.NoError(t, err)

	got, err := f.inspector.Introspect(context.Background(), &response.IntrospectionRequest{
		Client: f.client(t, "web"), Token: resp.RefreshToken, TokenTypeHint: response.TokenTypeHintRefreshToken,
	})
	require.NoError(t, err)
	assert.Equal(t, true, got["active"])
	assert.Equal(t, "alice", got["sub"])
	assert.Equal(t, "web", got["client_id"])
	assert.Equal(t, "openid offline_access", got["scope"])
	assert.Equal(t, testNow.Add(model.DefaultAbsoluteRefreshTokenLifetime).Unix(), got["exp"])

	got, err = f.inspector.Introspect(context.Background(), &response.IntrospectionRequest{
		Client: f.client(t, "svc"), Token: resp.RefreshToken,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"active": false}, got, "refresh tokens are only visible to their client")
}

func TestIntrospect_Garbage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	for _, tok := range []string{"", "unknown-handle", "a.b.c"} {
		got, err := f.inspector.Introspect(context.Background(), &response.IntrospectionRequest{Token: tok})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"active": false}, got, tok)
	}
}

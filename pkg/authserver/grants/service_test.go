// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package grants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authcore/pkg/authserver/model"
)

func TestService_GetAllGrants(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newMemoryStore(t)
	svc := NewService(backend)

	now := time.Now().Truncate(time.Second)
	consentExp := now.Add(30 * time.Minute)

	require.NoError(t, NewConsentStore(backend).StoreUserConsent(ctx, &model.Consent{
		SubjectID:    "alice",
		ClientID:     "web",
		Scopes:       []string{"profile", "openid"},
		CreationTime: now.Add(-time.Hour),
		Expiration:   &consentExp,
	}))

	rt := &model.RefreshToken{
		CreationTime: now,
		Lifetime:     2 * time.Hour,
		AccessToken:  testToken("alice", "web", "openid", "offline_access"),
	}
	_, err := NewRefreshStore(backend).StoreRefreshToken(ctx, rt)
	require.NoError(t, err)

	ref := testToken("alice", "api-client", "api1")
	ref.CreationTime = now
	_, err = NewReferenceStore(backend).StoreReferenceToken(ctx, ref)
	require.NoError(t, err)

	// Another subject's grants are not included.
	require.NoError(t, NewConsentStore(backend).StoreUserConsent(ctx, &model.Consent{
		SubjectID: "bob", ClientID: "web", Scopes: []string{"openid"}, CreationTime: now,
	}))

	got, err := svc.GetAllGrants(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "api-client", got[0].ClientID)
	assert.Equal(t, []string{"api1"}, got[0].Scopes)

	web := got[1]
	assert.Equal(t, "web", web.ClientID)
	assert.Equal(t, "alice", web.SubjectID)
	assert.Equal(t, []string{"offline_access", "openid", "profile"}, web.Scopes)
	assert.True(t, web.CreationTime.Equal(now.Add(-time.Hour)), "earliest creation wins")
	require.NotNil(t, web.Expiration)
	assert.True(t, web.Expiration.Equal(now.Add(2*time.Hour)), "latest expiration wins")

	_, err = svc.GetAllGrants(ctx, "")
	require.Error(t, err)
}

func TestService_GetAllGrants_NeverExpiringConsent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	backend := newMemoryStore(t)

	require.NoError(t, NewConsentStore(backend).StoreUserConsent(ctx, &model.Consent{
		SubjectID: "alice", ClientID: "web", Scopes: []string{"openid"}, CreationTime: time.Now(),
	}))
	_, err := NewRefreshStore(backend).StoreRefreshToken(ctx, &model.RefreshToken{
		CreationTime: time.Now(),
		Lifetime:     time.Hour,
		AccessToken:  testToken("alice", "web", "openid"),
	})
	require.NoError(t, err)

	got, err := NewService(backend).GetAllGrants(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].Expiration)
}

func TestService_RemoveAllGrants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		clientID    string
		wantClients []string
	}{
		{name: "single client", clientID: "web", wantClients: []string{"api-client"}},
		{name: "all clients", clientID: "", wantClients: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			backend := newMemoryStore(t)
			svc := NewService(backend)

			require.NoError(t, NewConsentStore(backend).StoreUserConsent(ctx, &model.Consent{
				SubjectID: "alice", ClientID: "web", Scopes: []string{"openid"}, CreationTime: time.Now(),
			}))
			refreshHandle, err := NewRefreshStore(backend).StoreRefreshToken(ctx, &model.RefreshToken{
				CreationTime: time.Now(), Lifetime: time.Hour, AccessToken: testToken("alice", "web", "openid"),
			})
			require.NoError(t, err)
			codeHandle, err := NewCodeStore(backend).StoreAuthorizationCode(ctx, &model.AuthorizationCode{
				CreationTime: time.Now(), Lifetime: time.Minute, ClientID: "web", Subject: &model.Subject{SubjectID: "alice"},
			})
			require.NoError(t, err)
			_, err = NewReferenceStore(backend).StoreReferenceToken(ctx, testToken("alice", "api-client", "api1"))
			require.NoError(t, err)

			require.NoError(t, svc.RemoveAllGrants(ctx, "alice", tt.clientID))

			remaining, err := svc.GetAllGrants(ctx, "alice")
			require.NoError(t, err)
			var clients []string
			for _, g := range remaining {
				clients = append(clients, g.ClientID)
			}
			assert.Equal(t, tt.wantClients, clients)

			rt, err := NewRefreshStore(backend).GetRefreshToken(ctx, refreshHandle)
			require.NoError(t, err)
			assert.Nil(t, rt)
			code, err := NewCodeStore(backend).GetAuthorizationCode(ctx, codeHandle)
			require.NoError(t, err)
			assert.Nil(t, code)
		})
	}

	require.Error(t, NewService(newMemoryStore(t)).RemoveAllGrants(context.Background(), "", "web"))
}

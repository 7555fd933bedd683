// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/storage"
	autherrors "github.com/stacklok/authcore/pkg/errors"
)

func validConfig() *Config {
	return &Config{
		Issuer:       "https://issuer.example.com",
		APIResources: []APIResourceConfig{{Name: "api1", Scopes: []string{"api1"}}},
		APIScopes:    []APIScopeConfig{{Name: "api1"}},
		Clients: []ClientConfig{{
			ID:                "svc",
			Secrets:           []string{"secret"},
			AllowedGrantTypes: []string{model.GrantTypeClientCredentials},
			AllowedScopes:     []string{"api1"},
		}},
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(c *Config)
		errMsg string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing issuer", mutate: func(c *Config) { c.Issuer = "" }, errMsg: "issuer is required"},
		{name: "relative issuer", mutate: func(c *Config) { c.Issuer = "/issuer" }, errMsg: "absolute URL"},
		{name: "issuer with query", mutate: func(c *Config) { c.Issuer = "https://issuer.example.com?a=b" }, errMsg: "query or fragment"},
		{
			name:   "unknown identity resource",
			mutate: func(c *Config) { c.IdentityResources = []string{"openid", "shoe_size"} },
			errMsg: "shoe_size",
		},
		{
			name:   "scope name clash",
			mutate: func(c *Config) { c.APIScopes = append(c.APIScopes, APIScopeConfig{Name: "profile"}) },
			errMsg: "duplicate scope name",
		},
		{
			name: "duplicate client",
			mutate: func(c *Config) {
				c.Clients = append(c.Clients, c.Clients[0])
			},
			errMsg: "duplicate id",
		},
		{
			name:   "client without grant types",
			mutate: func(c *Config) { c.Clients[0].AllowedGrantTypes = nil },
			errMsg: `client "svc"`,
		},
		{
			name: "implicit with code flow",
			mutate: func(c *Config) {
				c.Clients[0].AllowedGrantTypes = []string{model.GrantTypeImplicit, model.GrantTypeAuthorizationCode}
				c.Clients[0].RedirectURIs = []string{"https://app.example.com/cb"}
			},
			errMsg: `client "svc"`,
		},
		{
			name:   "redis without address",
			mutate: func(c *Config) { c.Storage = storage.Config{Type: storage.TypeRedis, Redis: &storage.RedisRunConfig{}} },
			errMsg: "storage",
		},
		{
			name:   "amqp without url",
			mutate: func(c *Config) { c.Events.AMQP = &events.AMQPConfig{} },
			errMsg: "amqp url is required",
		},
		{
			name: "two key sources",
			mutate: func(c *Config) {
				c.Keys.KeyDir = "/keys"
				c.Keys.SigningKeyFile = "signing.pem"
				c.Keys.SecretID = "authcore/keys"
			},
			errMsg: "mutually exclusive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(cfg)
			cfg.applyDefaults()

			err := cfg.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, autherrors.IsConfiguration(err))
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestConfigApplyDefaults(t *testing.T) {
	t.Parallel()

	cfg := &Config{Issuer: "https://issuer.example.com"}
	cfg.applyDefaults()

	assert.Equal(t, DefaultIdentityResources, cfg.IdentityResources)
	assert.Equal(t, storage.TypeMemory, cfg.Storage.Type)
	assert.Equal(t, storage.DefaultCleanupInterval, cfg.Storage.CleanupInterval)
	assert.Equal(t, defaultDeviceInterval, cfg.Device.Interval)
}

func TestClientConfigToClient(t *testing.T) {
	t.Parallel()

	disabled := false
	prefix := ""
	client := (&ClientConfig{
		ID:                   "web",
		AllowedGrantTypes:    []string{model.GrantTypeAuthorizationCodeWithPKCE},
		RequireClientSecret:  &disabled,
		AllowRememberConsent: &disabled,
		AccessTokenLifetime:  10 * time.Minute,
		RefreshTokenUsage:    model.RefreshTokenUsageReUse,
		Claims:               map[string]string{"tier": "gold", "region": "eu"},
		ClientClaimsPrefix:   &prefix,
	}).ToClient()

	assert.True(t, client.Enabled, "unset flags keep their defaults")
	assert.True(t, client.EnableLocalLogin)
	assert.False(t, client.RequireClientSecret)
	assert.False(t, client.AllowRememberConsent)
	assert.Equal(t, 10*time.Minute, client.AccessTokenLifetime)
	assert.Equal(t, model.DefaultAuthorizationCodeLifetime, client.AuthorizationCodeLifetime)
	assert.Equal(t, model.RefreshTokenUsageReUse, client.RefreshTokenUsage)
	assert.Equal(t, model.RefreshTokenExpirationAbsolute, client.RefreshTokenExpiration)
	assert.Equal(t, model.AccessTokenTypeJWT, client.AccessTokenType)
	assert.Empty(t, client.ClientClaimsPrefix)
	assert.Equal(t, []model.Claim{model.NewClaim("region", "eu"), model.NewClaim("tier", "gold")}, client.Claims)
}

const testConfigYAML = `
issuer: https://issuer.example.com
identity_resources: [openid, profile, email]
api_resources:
  - name: api1
    scopes: [api1]
api_scopes:
  - name: api1
clients:
  - id: web
    allowed_grant_types: [authorization_code_with_pkce]
    redirect_uris: [https://app.example.com/callback]
    allowed_scopes: [openid, profile, api1]
    allow_offline_access: true
    require_client_secret: false
    access_token_lifetime: 15m
    refresh_token_usage: ReUse
storage:
  type: memory
device:
  verification_uri: https://issuer.example.com/device
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://issuer.example.com", cfg.Issuer)
	assert.Equal(t, []string{"openid", "profile", "email"}, cfg.IdentityResources)
	require.Len(t, cfg.Clients, 1)

	web := cfg.Clients[0].ToClient()
	assert.Equal(t, "web", web.ClientID)
	assert.Equal(t, 15*time.Minute, web.AccessTokenLifetime)
	assert.Equal(t, model.RefreshTokenUsageReUse, web.RefreshTokenUsage)
	assert.False(t, web.RequireClientSecret)
	assert.True(t, web.AllowOfflineAccess)
	assert.Equal(t, "https://issuer.example.com/device", cfg.Device.VerificationURI)
	assert.Equal(t, defaultDeviceInterval, cfg.Device.Interval)
}

// Not parallel: the environment is process-wide.
func TestLoadConfig_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AUTHCORE_ISSUER", "https://override.example.com")
	t.Setenv("AUTHCORE_STORAGE_TYPE", "sqlite")
	t.Setenv("AUTHCORE_STORAGE_SQLITE_PATH", filepath.Join(t.TempDir(), "grants.db"))

	cfg, err := LoadConfig(writeConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.Equal(t, "https://override.example.com", cfg.Issuer)
	assert.Equal(t, storage.TypeSQLite, cfg.Storage.Type)
	require.NotNil(t, cfg.Storage.SQLite)
	assert.NotEmpty(t, cfg.Storage.SQLite.Path)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, autherrors.IsConfiguration(err))

	_, err = LoadConfig(writeConfig(t, "clients:\n  - id: svc\n"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "issuer is required")
}

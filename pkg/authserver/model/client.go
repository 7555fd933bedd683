// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"slices"
	"time"
)

// TokenUsage controls what happens to a refresh token handle on redemption.
type TokenUsage string

const (
	// RefreshTokenUsageReUse keeps the same handle across refreshes.
	RefreshTokenUsageReUse TokenUsage = "ReUse"
	// RefreshTokenUsageOneTimeOnly replaces the handle on every refresh.
	RefreshTokenUsageOneTimeOnly TokenUsage = "OneTimeOnly"
)

// TokenExpiration controls how refresh token lifetimes are computed.
type TokenExpiration string

const (
	// RefreshTokenExpirationAbsolute expires the token a fixed time after creation.
	RefreshTokenExpirationAbsolute TokenExpiration = "Absolute"
	// RefreshTokenExpirationSliding extends the lifetime on each refresh,
	// capped at the absolute lifetime when one is set.
	RefreshTokenExpirationSliding TokenExpiration = "Sliding"
)

// AccessTokenType selects how access tokens are represented.
type AccessTokenType string

const (
	// AccessTokenTypeJWT issues self-contained signed tokens.
	AccessTokenTypeJWT AccessTokenType = "jwt"
	// AccessTokenTypeReference issues opaque handles backed by the grant store.
	AccessTokenTypeReference AccessTokenType = "reference"
)

// Default client settings.
const (
	DefaultIdentityTokenLifetime        = 5 * time.Minute
	DefaultAccessTokenLifetime          = time.Hour
	DefaultAuthorizationCodeLifetime    = 5 * time.Minute
	DefaultAbsoluteRefreshTokenLifetime = 30 * 24 * time.Hour
	DefaultSlidingRefreshTokenLifetime  = 15 * 24 * time.Hour
	DefaultDeviceCodeLifetime           = 5 * time.Minute
	DefaultClientClaimsPrefix           = "client_"
)

// Client is a registered OAuth2 / OpenID Connect client. Clients are
// read-only to the engine.
type Client struct {
	ClientID     string `json:"client_id"`
	ClientName   string `json:"client_name,omitempty"`
	Enabled      bool   `json:"enabled"`
	ProtocolType string `json:"protocol_type,omitempty"`

	// Secrets holds hashed client secrets.
	Secrets             []string `json:"secrets,omitempty"`
	RequireClientSecret bool     `json:"require_client_secret"`

	// AllowedGrantTypes is checked by policy.ValidateGrantTypes on registration.
	AllowedGrantTypes      []string `json:"allowed_grant_types"`
	RedirectURIs           []string `json:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs []string `json:"post_logout_redirect_uris,omitempty"`
	AllowedScopes          []string `json:"allowed_scopes,omitempty"`
	AllowOfflineAccess     bool     `json:"allow_offline_access"`

	RequireConsent       bool          `json:"require_consent"`
	AllowRememberConsent bool          `json:"allow_remember_consent"`
	ConsentLifetime      time.Duration `json:"consent_lifetime,omitempty"`

	IdentityTokenLifetime            time.Duration   `json:"identity_token_lifetime"`
	AccessTokenLifetime              time.Duration   `json:"access_token_lifetime"`
	AuthorizationCodeLifetime        time.Duration   `json:"authorization_code_lifetime"`
	AbsoluteRefreshTokenLifetime     time.Duration   `json:"absolute_refresh_token_lifetime"`
	SlidingRefreshTokenLifetime      time.Duration   `json:"sliding_refresh_token_lifetime"`
	DeviceCodeLifetime               time.Duration   `json:"device_code_lifetime"`
	RefreshTokenUsage                TokenUsage      `json:"refresh_token_usage"`
	RefreshTokenExpiration           TokenExpiration `json:"refresh_token_expiration"`
	UpdateAccessTokenClaimsOnRefresh bool            `json:"update_access_token_claims_on_refresh"`
	AccessTokenType                  AccessTokenType `json:"access_token_type"`

	EnableLocalLogin             bool          `json:"enable_local_login"`
	IdentityProviderRestrictions []string      `json:"identity_provider_restrictions,omitempty"`
	UserSSOLifetime              time.Duration `json:"user_sso_lifetime,omitempty"`

	// Claims are client claims added to access tokens.
	Claims                           []Claim `json:"claims,omitempty"`
	AlwaysSendClientClaims           bool    `json:"always_send_client_claims"`
	ClientClaimsPrefix               string  `json:"client_claims_prefix"`
	IncludeJwtID                     bool    `json:"include_jwt_id"`
	AlwaysIncludeUserClaimsInIDToken bool    `json:"always_include_user_claims_in_id_token"`

	AllowedIdentityTokenSigningAlgorithms []string `json:"allowed_identity_token_signing_algorithms,omitempty"`
}

// NewClient returns a client with the default settings applied.
func NewClient(clientID string) *Client {
	return &Client{
		ClientID:                     clientID,
		Enabled:                      true,
		ProtocolType:                 "oidc",
		RequireClientSecret:          true,
		AllowRememberConsent:         true,
		EnableLocalLogin:             true,
		IdentityTokenLifetime:        DefaultIdentityTokenLifetime,
		AccessTokenLifetime:          DefaultAccessTokenLifetime,
		AuthorizationCodeLifetime:    DefaultAuthorizationCodeLifetime,
		AbsoluteRefreshTokenLifetime: DefaultAbsoluteRefreshTokenLifetime,
		SlidingRefreshTokenLifetime:  DefaultSlidingRefreshTokenLifetime,
		DeviceCodeLifetime:           DefaultDeviceCodeLifetime,
		RefreshTokenUsage:            RefreshTokenUsageOneTimeOnly,
		RefreshTokenExpiration:       RefreshTokenExpirationAbsolute,
		AccessTokenType:              AccessTokenTypeJWT,
		ClientClaimsPrefix:           DefaultClientClaimsPrefix,
	}
}

// RequirePKCE reports whether the configured grant types mandate a code
// challenge.
func (c *Client) RequirePKCE() bool {
	return slices.Contains(c.AllowedGrantTypes, GrantTypeAuthorizationCodeWithPKCE) ||
		slices.Contains(c.AllowedGrantTypes, GrantTypeHybridWithPKCE)
}

// AllowsGrantType reports whether the client may use grantType at the token
// endpoint. The PKCE variants of the code and hybrid flows redeem codes with
// the plain authorization_code grant.
func (c *Client) AllowsGrantType(grantType string) bool {
	if slices.Contains(c.AllowedGrantTypes, grantType) {
		return true
	}
	if grantType == GrantTypeAuthorizationCode {
		return slices.ContainsFunc(c.AllowedGrantTypes, func(gt string) bool {
			switch gt {
			case GrantTypeAuthorizationCodeWithPKCE, GrantTypeHybrid, GrantTypeHybridWithPKCE:
				return true
			}
			return false
		})
	}
	return false
}

// AllowsScope reports whether scope is in the client's allowed scopes.
// offline_access is governed by AllowOfflineAccess instead.
func (c *Client) AllowsScope(scope string) bool {
	if scope == ScopeOfflineAccess {
		return c.AllowOfflineAccess
	}
	return slices.Contains(c.AllowedScopes, scope)
}

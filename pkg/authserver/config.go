// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"slices"
	"time"

	"github.com/stacklok/authcore/pkg/authserver/events"
	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/policy"
	"github.com/stacklok/authcore/pkg/authserver/resources"
	"github.com/stacklok/authcore/pkg/authserver/server/keys"
	"github.com/stacklok/authcore/pkg/authserver/storage"
	autherrors "github.com/stacklok/authcore/pkg/errors"
	"github.com/stacklok/authcore/pkg/logger"
)

// DefaultIdentityResources are enabled when the configuration names none.
var DefaultIdentityResources = []string{model.ScopeOpenID, model.ScopeProfile}

// Config is the configuration of an Engine.
type Config struct {
	// Issuer is the iss of every token. Must be an absolute URL.
	Issuer string `mapstructure:"issuer" yaml:"issuer"`

	// EmitStaticAudienceClaim adds "{issuer}/resources" to every access
	// token audience.
	EmitStaticAudienceClaim bool `mapstructure:"emit_static_audience_claim" yaml:"emit_static_audience_claim,omitempty"`

	// IdentityResources names the standard OpenID Connect identity resources
	// to enable (openid, profile, email, phone, address).
	IdentityResources []string `mapstructure:"identity_resources" yaml:"identity_resources,omitempty"`

	APIResources []APIResourceConfig `mapstructure:"api_resources" yaml:"api_resources,omitempty"`
	APIScopes    []APIScopeConfig    `mapstructure:"api_scopes" yaml:"api_scopes,omitempty"`

	Clients []ClientConfig `mapstructure:"clients" yaml:"clients,omitempty"`

	// ExtensionGrantTypes are accepted at the token endpoint in addition to
	// the standard grant types.
	ExtensionGrantTypes []string `mapstructure:"extension_grant_types" yaml:"extension_grant_types,omitempty"`

	Device DeviceConfig `mapstructure:"device" yaml:"device,omitempty"`

	Keys    keys.Config    `mapstructure:"keys" yaml:"keys,omitempty"`
	Storage storage.Config `mapstructure:"storage" yaml:"storage,omitempty"`
	Events  events.Config  `mapstructure:"events" yaml:"events,omitempty"`
}

// DeviceConfig configures the device authorization response.
type DeviceConfig struct {
	VerificationURI string        `mapstructure:"verification_uri" yaml:"verification_uri,omitempty"`
	Interval        time.Duration `mapstructure:"interval" yaml:"interval,omitempty"`
}

// APIResourceConfig defines a protected API.
type APIResourceConfig struct {
	Name        string   `mapstructure:"name" yaml:"name"`
	DisplayName string   `mapstructure:"display_name" yaml:"display_name,omitempty"`
	Disabled    bool     `mapstructure:"disabled" yaml:"disabled,omitempty"`
	Scopes      []string `mapstructure:"scopes" yaml:"scopes,omitempty"`
	UserClaims  []string `mapstructure:"user_claims" yaml:"user_claims,omitempty"`

	AllowedAccessTokenSigningAlgorithms []string `mapstructure:"allowed_access_token_signing_algorithms" yaml:"allowed_access_token_signing_algorithms,omitempty"`
}

// APIScopeConfig defines a scope of one or more APIs.
type APIScopeConfig struct {
	Name        string   `mapstructure:"name" yaml:"name"`
	DisplayName string   `mapstructure:"display_name" yaml:"display_name,omitempty"`
	Disabled    bool     `mapstructure:"disabled" yaml:"disabled,omitempty"`
	Required    bool     `mapstructure:"required" yaml:"required,omitempty"`
	Emphasize   bool     `mapstructure:"emphasize" yaml:"emphasize,omitempty"`
	UserClaims  []string `mapstructure:"user_claims" yaml:"user_claims,omitempty"`
}

// ClientConfig defines a registered client. Unset fields take the defaults
// of model.NewClient; flags that default to true are pointers so that an
// explicit false can be told apart from an omitted value.
type ClientConfig struct {
	ID      string   `mapstructure:"id" yaml:"id"`
	Name    string   `mapstructure:"name" yaml:"name,omitempty"`
	Enabled *bool    `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Secrets []string `mapstructure:"secrets" yaml:"secrets,omitempty"`

	RequireClientSecret *bool `mapstructure:"require_client_secret" yaml:"require_client_secret,omitempty"`

	AllowedGrantTypes      []string `mapstructure:"allowed_grant_types" yaml:"allowed_grant_types"`
	RedirectURIs           []string `mapstructure:"redirect_uris" yaml:"redirect_uris,omitempty"`
	PostLogoutRedirectURIs []string `mapstructure:"post_logout_redirect_uris" yaml:"post_logout_redirect_uris,omitempty"`
	AllowedScopes          []string `mapstructure:"allowed_scopes" yaml:"allowed_scopes,omitempty"`
	AllowOfflineAccess     bool     `mapstructure:"allow_offline_access" yaml:"allow_offline_access,omitempty"`

	RequireConsent       bool          `mapstructure:"require_consent" yaml:"require_consent,omitempty"`
	AllowRememberConsent *bool         `mapstructure:"allow_remember_consent" yaml:"allow_remember_consent,omitempty"`
	ConsentLifetime      time.Duration `mapstructure:"consent_lifetime" yaml:"consent_lifetime,omitempty"`

	IdentityTokenLifetime            time.Duration         `mapstructure:"identity_token_lifetime" yaml:"identity_token_lifetime,omitempty"`
	AccessTokenLifetime              time.Duration         `mapstructure:"access_token_lifetime" yaml:"access_token_lifetime,omitempty"`
	AuthorizationCodeLifetime        time.Duration         `mapstructure:"authorization_code_lifetime" yaml:"authorization_code_lifetime,omitempty"`
	AbsoluteRefreshTokenLifetime     time.Duration         `mapstructure:"absolute_refresh_token_lifetime" yaml:"absolute_refresh_token_lifetime,omitempty"`
	SlidingRefreshTokenLifetime      time.Duration         `mapstructure:"sliding_refresh_token_lifetime" yaml:"sliding_refresh_token_lifetime,omitempty"`
	DeviceCodeLifetime               time.Duration         `mapstructure:"device_code_lifetime" yaml:"device_code_lifetime,omitempty"`
	RefreshTokenUsage                model.TokenUsage      `mapstructure:"refresh_token_usage" yaml:"refresh_token_usage,omitempty"`
	RefreshTokenExpiration           model.TokenExpiration `mapstructure:"refresh_token_expiration" yaml:"refresh_token_expiration,omitempty"`
	UpdateAccessTokenClaimsOnRefresh bool                  `mapstructure:"update_access_token_claims_on_refresh" yaml:"update_access_token_claims_on_refresh,omitempty"`
	AccessTokenType                  model.AccessTokenType `mapstructure:"access_token_type" yaml:"access_token_type,omitempty"`

	EnableLocalLogin             *bool         `mapstructure:"enable_local_login" yaml:"enable_local_login,omitempty"`
	IdentityProviderRestrictions []string      `mapstructure:"identity_provider_restrictions" yaml:"identity_provider_restrictions,omitempty"`
	UserSSOLifetime              time.Duration `mapstructure:"user_sso_lifetime" yaml:"user_sso_lifetime,omitempty"`

	Claims                           map[string]string `mapstructure:"claims" yaml:"claims,omitempty"`
	AlwaysSendClientClaims           bool              `mapstructure:"always_send_client_claims" yaml:"always_send_client_claims,omitempty"`
	ClientClaimsPrefix               *string           `mapstructure:"client_claims_prefix" yaml:"client_claims_prefix,omitempty"`
	IncludeJwtID                     bool              `mapstructure:"include_jwt_id" yaml:"include_jwt_id,omitempty"`
	AlwaysIncludeUserClaimsInIDToken bool              `mapstructure:"always_include_user_claims_in_id_token" yaml:"always_include_user_claims_in_id_token,omitempty"`

	AllowedIdentityTokenSigningAlgorithms []string `mapstructure:"allowed_identity_token_signing_algorithms" yaml:"allowed_identity_token_signing_algorithms,omitempty"`
}

// ToClient converts c into a model client.
func (c *ClientConfig) ToClient() *model.Client {
	client := model.NewClient(c.ID)
	client.ClientName = c.Name
	client.Enabled = boolOr(c.Enabled, client.Enabled)
	client.Secrets = slices.Clone(c.Secrets)
	client.RequireClientSecret = boolOr(c.RequireClientSecret, client.RequireClientSecret)

	client.AllowedGrantTypes = slices.Clone(c.AllowedGrantTypes)
	client.RedirectURIs = slices.Clone(c.RedirectURIs)
	client.PostLogoutRedirectURIs = slices.Clone(c.PostLogoutRedirectURIs)
	client.AllowedScopes = slices.Clone(c.AllowedScopes)
	client.AllowOfflineAccess = c.AllowOfflineAccess

	client.RequireConsent = c.RequireConsent
	client.AllowRememberConsent = boolOr(c.AllowRememberConsent, client.AllowRememberConsent)
	client.ConsentLifetime = c.ConsentLifetime

	durationOr(&client.IdentityTokenLifetime, c.IdentityTokenLifetime)
	durationOr(&client.AccessTokenLifetime, c.AccessTokenLifetime)
	durationOr(&client.AuthorizationCodeLifetime, c.AuthorizationCodeLifetime)
	durationOr(&client.AbsoluteRefreshTokenLifetime, c.AbsoluteRefreshTokenLifetime)
	durationOr(&client.SlidingRefreshTokenLifetime, c.SlidingRefreshTokenLifetime)
	durationOr(&client.DeviceCodeLifetime, c.DeviceCodeLifetime)
	if c.RefreshTokenUsage != "" {
		client.RefreshTokenUsage = c.RefreshTokenUsage
	}
	if c.RefreshTokenExpiration != "" {
		client.RefreshTokenExpiration = c.RefreshTokenExpiration
	}
	client.UpdateAccessTokenClaimsOnRefresh = c.UpdateAccessTokenClaimsOnRefresh
	if c.AccessTokenType != "" {
		client.AccessTokenType = c.AccessTokenType
	}

	client.EnableLocalLogin = boolOr(c.EnableLocalLogin, client.EnableLocalLogin)
	client.IdentityProviderRestrictions = slices.Clone(c.IdentityProviderRestrictions)
	client.UserSSOLifetime = c.UserSSOLifetime

	for _, claimType := range slices.Sorted(maps.Keys(c.Claims)) {
		client.Claims = append(client.Claims, model.NewClaim(claimType, c.Claims[claimType]))
	}
	client.AlwaysSendClientClaims = c.AlwaysSendClientClaims
	if c.ClientClaimsPrefix != nil {
		client.ClientClaimsPrefix = *c.ClientClaimsPrefix
	}
	client.IncludeJwtID = c.IncludeJwtID
	client.AlwaysIncludeUserClaimsInIDToken = c.AlwaysIncludeUserClaimsInIDToken
	client.AllowedIdentityTokenSigningAlgorithms = slices.Clone(c.AllowedIdentityTokenSigningAlgorithms)
	return client
}

// ToIdentityResources resolves the configured identity resource names.
func (c *Config) ToIdentityResources() ([]model.IdentityResource, error) {
	names := c.IdentityResources
	if len(names) == 0 {
		names = DefaultIdentityResources
	}
	return resources.StandardIdentityResources(names...)
}

// ToAPIResources converts the configured APIs.
func (c *Config) ToAPIResources() []model.APIResource {
	out := make([]model.APIResource, 0, len(c.APIResources))
	for _, r := range c.APIResources {
		out = append(out, model.APIResource{
			Name:                                r.Name,
			DisplayName:                         r.DisplayName,
			Enabled:                             !r.Disabled,
			Scopes:                              slices.Clone(r.Scopes),
			UserClaims:                          slices.Clone(r.UserClaims),
			AllowedAccessTokenSigningAlgorithms: slices.Clone(r.AllowedAccessTokenSigningAlgorithms),
		})
	}
	return out
}

// ToAPIScopes converts the configured API scopes.
func (c *Config) ToAPIScopes() []model.APIScope {
	out := make([]model.APIScope, 0, len(c.APIScopes))
	for _, s := range c.APIScopes {
		out = append(out, model.APIScope{
			Name:        s.Name,
			DisplayName: s.DisplayName,
			Enabled:     !s.Disabled,
			Required:    s.Required,
			Emphasize:   s.Emphasize,
			UserClaims:  slices.Clone(s.UserClaims),
		})
	}
	return out
}

// ToClients converts the configured clients.
func (c *Config) ToClients() []*model.Client {
	out := make([]*model.Client, 0, len(c.Clients))
	for i := range c.Clients {
		out = append(out, c.Clients[i].ToClient())
	}
	return out
}

// Validate checks that the Config is complete and consistent. Every failure
// is a configuration error.
func (c *Config) Validate() error {
	logger.Debugw("validating authserver config", "issuer", c.Issuer)

	if err := c.validate(); err != nil {
		return autherrors.NewConfigurationError("invalid authserver configuration", err)
	}

	logger.Debugw("authserver config validation passed",
		"issuer", c.Issuer,
		"clientCount", len(c.Clients),
		"storage", c.Storage.Type,
	)
	return nil
}

func (c *Config) validate() error {
	if c.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}
	u, err := url.Parse(c.Issuer)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL: %q", c.Issuer)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return fmt.Errorf("issuer must not carry a query or fragment")
	}

	if err := c.Keys.Validate(); err != nil {
		return fmt.Errorf("keys: %w", err)
	}
	if err := c.Storage.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if c.Events.AMQP != nil && c.Events.AMQP.URL == "" {
		return fmt.Errorf("events: amqp url is required")
	}
	if c.Device.Interval < 0 {
		return fmt.Errorf("device: interval must not be negative")
	}

	identity, err := c.ToIdentityResources()
	if err != nil {
		return err
	}
	if _, err := resources.NewMemoryStore(identity, c.ToAPIResources(), c.ToAPIScopes()); err != nil {
		return fmt.Errorf("resources: %w", err)
	}

	var errs []error
	seen := make(map[string]bool, len(c.Clients))
	for i, client := range c.ToClients() {
		if client.ClientID == "" {
			errs = append(errs, fmt.Errorf("client %d: id is required", i))
			continue
		}
		if seen[client.ClientID] {
			errs = append(errs, fmt.Errorf("client %q: duplicate id", client.ClientID))
			continue
		}
		seen[client.ClientID] = true
		if err := policy.ValidateClient(client); err != nil {
			errs = append(errs, fmt.Errorf("client %q: %w", client.ClientID, err))
		}
	}
	return errors.Join(errs...)
}

// applyDefaults applies default values to the config where not set.
func (c *Config) applyDefaults() {
	logger.Debug("applying default values to authserver config")

	if len(c.IdentityResources) == 0 {
		c.IdentityResources = slices.Clone(DefaultIdentityResources)
		logger.Debugw("applied default identity resources", "resources", c.IdentityResources)
	}
	if c.Storage.Type == "" {
		c.Storage.Type = storage.TypeMemory
		logger.Debugw("applied default storage type", "type", c.Storage.Type)
	}
	if c.Storage.Type == storage.TypeMemory && c.Storage.CleanupInterval == 0 {
		c.Storage.CleanupInterval = storage.DefaultCleanupInterval
		logger.Debugw("applied default cleanup interval", "interval", c.Storage.CleanupInterval)
	}
	if c.Device.Interval == 0 {
		c.Device.Interval = defaultDeviceInterval
		logger.Debugw("applied default device polling interval", "interval", c.Device.Interval)
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

func durationOr(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}


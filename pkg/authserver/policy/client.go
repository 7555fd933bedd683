// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package policy

import (
	"fmt"
	"net/url"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/logger"
)

// ValidateClient checks a client definition before it is registered.
func ValidateClient(c *model.Client) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}

	logger.Debugw("validating client definition", "clientID", c.ClientID)

	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}

	if err := ValidateGrantTypes(c.AllowedGrantTypes); err != nil {
		return fmt.Errorf("client %s: %w", c.ClientID, err)
	}

	for _, uri := range c.RedirectURIs {
		u, err := url.Parse(uri)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("client %s: redirect_uri %q must be an absolute URI", c.ClientID, uri)
		}
		if u.Fragment != "" {
			return fmt.Errorf("client %s: redirect_uri %q must not contain a fragment", c.ClientID, uri)
		}
	}

	if c.AccessTokenLifetime <= 0 || c.IdentityTokenLifetime <= 0 || c.AuthorizationCodeLifetime <= 0 {
		return fmt.Errorf("client %s: token lifetimes must be positive", c.ClientID)
	}

	if c.AbsoluteRefreshTokenLifetime < 0 || c.SlidingRefreshTokenLifetime < 0 {
		return fmt.Errorf("client %s: refresh token lifetimes cannot be negative", c.ClientID)
	}

	if c.RefreshTokenExpiration == model.RefreshTokenExpirationSliding && c.SlidingRefreshTokenLifetime == 0 {
		return fmt.Errorf("client %s: sliding refresh token expiration requires a sliding lifetime", c.ClientID)
	}

	switch c.RefreshTokenUsage {
	case model.RefreshTokenUsageReUse, model.RefreshTokenUsageOneTimeOnly:
	default:
		return fmt.Errorf("client %s: unsupported refresh token usage %q", c.ClientID, c.RefreshTokenUsage)
	}

	switch c.RefreshTokenExpiration {
	case model.RefreshTokenExpirationAbsolute, model.RefreshTokenExpirationSliding:
	default:
		return fmt.Errorf("client %s: unsupported refresh token expiration %q", c.ClientID, c.RefreshTokenExpiration)
	}

	switch c.AccessTokenType {
	case model.AccessTokenTypeJWT, model.AccessTokenTypeReference:
	default:
		return fmt.Errorf("client %s: unsupported access token type %q", c.ClientID, c.AccessTokenType)
	}

	return nil
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"slices"
	"strings"
)

// Well-known scopes.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeAddress       = "address"
	ScopePhone         = "phone"
	ScopeOfflineAccess = "offline_access"
)

// IdentityResource is a scope that maps to user identity claims.
type IdentityResource struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	Enabled     bool     `json:"enabled"`
	Required    bool     `json:"required"`
	Emphasize   bool     `json:"emphasize"`
	UserClaims  []string `json:"user_claims,omitempty"`
}

// APIScope is a scope that grants access to one or more API resources.
type APIScope struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	Enabled     bool     `json:"enabled"`
	Required    bool     `json:"required"`
	Emphasize   bool     `json:"emphasize"`
	UserClaims  []string `json:"user_claims,omitempty"`
}

// APIResource is a protected API. Its name becomes an access token audience.
type APIResource struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	Enabled     bool     `json:"enabled"`
	Scopes      []string `json:"scopes,omitempty"`
	UserClaims  []string `json:"user_claims,omitempty"`

	// Secrets holds hashed secrets the API uses for introspection.
	Secrets []string `json:"secrets,omitempty"`

	AllowedAccessTokenSigningAlgorithms []string `json:"allowed_access_token_signing_algorithms,omitempty"`
}

// Resources is a set of identity resources, API resources and API scopes.
type Resources struct {
	IdentityResources []IdentityResource `json:"identity_resources,omitempty"`
	APIResources      []APIResource      `json:"api_resources,omitempty"`
	APIScopes         []APIScope         `json:"api_scopes,omitempty"`
	OfflineAccess     bool               `json:"offline_access"`
}

// ResourceValidationResult is the outcome of resolving requested scope values
// against the resource store.
type ResourceValidationResult struct {
	Resources Resources
	// Scopes are the parsed scope values in request order.
	Scopes []string
}

// RawScopeValues returns the scope values as requested.
func (r *ResourceValidationResult) RawScopeValues() []string {
	if r == nil {
		return nil
	}
	return slices.Clone(r.Scopes)
}

// ContainsScope reports whether scope was requested.
func (r *ResourceValidationResult) ContainsScope(scope string) bool {
	return r != nil && slices.Contains(r.Scopes, scope)
}

// IsOpenID reports whether the openid scope was requested.
func (r *ResourceValidationResult) IsOpenID() bool {
	return r.ContainsScope(ScopeOpenID)
}

// Filter narrows the result to the given scope values, preserving the
// original order.
func (r *ResourceValidationResult) Filter(scopes []string) *ResourceValidationResult {
	out := &ResourceValidationResult{}
	if r == nil {
		return out
	}

	for _, s := range r.Scopes {
		if slices.Contains(scopes, s) {
			out.Scopes = append(out.Scopes, s)
		}
	}
	for _, ir := range r.Resources.IdentityResources {
		if slices.Contains(scopes, ir.Name) {
			out.Resources.IdentityResources = append(out.Resources.IdentityResources, ir)
		}
	}
	for _, as := range r.Resources.APIScopes {
		if slices.Contains(scopes, as.Name) {
			out.Resources.APIScopes = append(out.Resources.APIScopes, as)
		}
	}
	apiScopeNames := out.Resources.APIScopeNames()
	for _, ar := range r.Resources.APIResources {
		if slices.ContainsFunc(ar.Scopes, func(s string) bool { return slices.Contains(apiScopeNames, s) }) {
			out.Resources.APIResources = append(out.Resources.APIResources, ar)
		}
	}
	out.Resources.OfflineAccess = r.Resources.OfflineAccess && slices.Contains(scopes, ScopeOfflineAccess)
	return out
}

// RequiredScopes returns the names of identity resources and API scopes
// marked as required.
func (r *Resources) RequiredScopes() []string {
	var required []string
	for _, ir := range r.IdentityResources {
		if ir.Required {
			required = append(required, ir.Name)
		}
	}
	for _, as := range r.APIScopes {
		if as.Required {
			required = append(required, as.Name)
		}
	}
	return required
}

// APIScopeNames returns the API scope names.
func (r *Resources) APIScopeNames() []string {
	names := make([]string, 0, len(r.APIScopes))
	for _, s := range r.APIScopes {
		names = append(names, s.Name)
	}
	return names
}

// APIResourceNames returns the distinct API resource names in order.
func (r *Resources) APIResourceNames() []string {
	var names []string
	for _, ar := range r.APIResources {
		if !slices.Contains(names, ar.Name) {
			names = append(names, ar.Name)
		}
	}
	return names
}

// IdentityUserClaimTypes returns the distinct user claim types requested by the
// identity resources.
func (r *Resources) IdentityUserClaimTypes() []string {
	var types []string
	for _, ir := range r.IdentityResources {
		types = appendDistinct(types, ir.UserClaims...)
	}
	return types
}

// APIUserClaimTypes returns the distinct user claim types requested by the
// API resources and API scopes.
func (r *Resources) APIUserClaimTypes() []string {
	var types []string
	for _, ar := range r.APIResources {
		types = appendDistinct(types, ar.UserClaims...)
	}
	for _, as := range r.APIScopes {
		types = appendDistinct(types, as.UserClaims...)
	}
	return types
}

// ParseScopes splits a space-delimited scope string.
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}

// JoinScopes renders scopes as a space-delimited string.
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}

func appendDistinct(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

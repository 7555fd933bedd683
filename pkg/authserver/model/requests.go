// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"slices"
	"time"
)

// Prompt modes.
const (
	PromptModeNone          = "none"
	PromptModeLogin         = "login"
	PromptModeConsent       = "consent"
	PromptModeSelectAccount = "select_account"
)

// PKCE code challenge methods.
const (
	CodeChallengeMethodPlain  = "plain"
	CodeChallengeMethodSHA256 = "S256"
)

// ValidatedAuthorizeRequest is an authorize request that passed protocol
// validation. The interaction engine may clear prompt modes and narrow the
// validated resources; nothing else mutates it.
type ValidatedAuthorizeRequest struct {
	Client       *Client
	ClientID     string
	Subject      *Subject
	ResponseType string
	ResponseMode string
	RedirectURI  string
	State        string
	Nonce        string

	ValidatedResources *ResourceValidationResult
	RequestedScopes    []string

	PromptModes []string
	// MaxAge is the max_age parameter; nil when absent.
	MaxAge *time.Duration
	// IdP is the identity provider requested through acr_values (idp:name).
	IdP string

	SessionID           string
	CodeChallenge       string
	CodeChallengeMethod string
	WasConsentShown     bool

	AccessTokenLifetime time.Duration
}

// IsOpenIDRequest reports whether openid was requested.
func (r *ValidatedAuthorizeRequest) IsOpenIDRequest() bool {
	return r.ValidatedResources.IsOpenID() || slices.Contains(r.RequestedScopes, ScopeOpenID)
}

// HasPrompt reports whether mode is among the prompt modes.
func (r *ValidatedAuthorizeRequest) HasPrompt(mode string) bool {
	return slices.Contains(r.PromptModes, mode)
}

// RemovePrompt clears the prompt modes so they are not re-applied when the
// user returns from the login page.
func (r *ValidatedAuthorizeRequest) RemovePrompt() {
	r.PromptModes = nil
}

// ValidatedTokenRequest is a token request that passed client authentication
// and parameter validation. The artifacts to redeem (code, refresh handle,
// device code) are carried raw; the token response generator looks them up.
type ValidatedTokenRequest struct {
	GrantType string
	Client    *Client

	// Subject is set for the password grant and extension grants.
	Subject *Subject
	// ValidatedResources is set for grants that request scopes directly.
	ValidatedResources *ResourceValidationResult

	AccessTokenLifetime time.Duration
	AccessTokenType     AccessTokenType
	SessionID           string

	AuthorizationCodeHandle string
	RedirectURI             string
	CodeVerifier            string
	RefreshTokenHandle      string
	DeviceCode              string

	// CustomResponse holds extra fields the validator wants in the response.
	CustomResponse map[string]any
}

// ConsentDecision is the user's answer on the consent page.
type ConsentDecision struct {
	ScopesConsented  []string
	RememberConsent  bool
	Description      string
	Error            string
	ErrorDescription string
}

// Granted reports whether the user consented to at least one scope.
func (d *ConsentDecision) Granted() bool {
	return d != nil && d.Error == "" && len(d.ScopesConsented) > 0
}

// InteractionError is a protocol error produced by the interaction engine.
type InteractionError struct {
	Code        string
	Description string
}

// InteractionResponse is the transient outcome of the interaction engine.
// At most one of IsLogin, IsConsent and Error is set; none set means proceed.
type InteractionResponse struct {
	IsLogin   bool
	IsConsent bool
	Error     *InteractionError
}

// IsError reports whether the engine produced an error.
func (r *InteractionResponse) IsError() bool {
	return r.Error != nil
}

// ShouldProceed reports whether the authorize response can be generated.
func (r *InteractionResponse) ShouldProceed() bool {
	return !r.IsLogin && !r.IsConsent && r.Error == nil
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"
)

// Token type tags.
const (
	TokenTypeAccessToken   = "access_token"
	TokenTypeIdentityToken = "id_token"
)

// TokenTypeBearer is the token_type returned for every access token.
const TokenTypeBearer = "Bearer"

// Token is an access or identity token before encoding. It is constructed
// per response and is either signed and returned, or persisted under a
// reference handle.
type Token struct {
	Type            string          `json:"type"`
	Issuer          string          `json:"issuer"`
	Audiences       []string        `json:"audiences,omitempty"`
	CreationTime    time.Time       `json:"creation_time"`
	Lifetime        time.Duration   `json:"lifetime"`
	ClientID        string          `json:"client_id"`
	AccessTokenType AccessTokenType `json:"access_token_type,omitempty"`
	Claims          []Claim         `json:"claims,omitempty"`
	Version         int             `json:"version"`

	// AllowedSigningAlgorithms narrows the credential used to sign the token.
	AllowedSigningAlgorithms []string `json:"allowed_signing_algorithms,omitempty"`
}

// CurrentTokenVersion is the payload version written for new tokens.
const CurrentTokenVersion = 4

// SubjectID returns the sub claim, or "" when the token has no subject.
func (t *Token) SubjectID() string {
	if c, ok := FindClaim(t.Claims, ClaimSubject); ok {
		return c.Value
	}
	return ""
}

// SessionID returns the sid claim.
func (t *Token) SessionID() string {
	if c, ok := FindClaim(t.Claims, ClaimSessionID); ok {
		return c.Value
	}
	return ""
}

// Scopes returns the values of the scope claims.
func (t *Token) Scopes() []string {
	return ClaimValues(t.Claims, ClaimScope)
}

// ExpiresAt returns CreationTime + Lifetime.
func (t *Token) ExpiresAt() time.Time {
	return t.CreationTime.Add(t.Lifetime)
}

// Clone returns a deep copy.
func (t *Token) Clone() *Token {
	if t == nil {
		return nil
	}
	out := *t
	out.Audiences = append([]string(nil), t.Audiences...)
	out.Claims = append([]Claim(nil), t.Claims...)
	out.AllowedSigningAlgorithms = append([]string(nil), t.AllowedSigningAlgorithms...)
	return &out
}

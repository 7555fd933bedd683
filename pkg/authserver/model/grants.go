// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"
)

// AuthorizationCode is the one-time artifact issued by the code and hybrid
// flows and redeemed once at the token endpoint.
type AuthorizationCode struct {
	CreationTime    time.Time     `json:"creation_time"`
	Lifetime        time.Duration `json:"lifetime"`
	ClientID        string        `json:"client_id"`
	Subject         *Subject      `json:"subject"`
	IsOpenID        bool          `json:"is_openid"`
	RequestedScopes []string      `json:"requested_scopes"`
	RedirectURI     string        `json:"redirect_uri"`
	Nonce           string        `json:"nonce,omitempty"`
	StateHash       string        `json:"state_hash,omitempty"`
	WasConsentShown bool          `json:"was_consent_shown"`
	SessionID       string        `json:"session_id,omitempty"`

	// CodeChallenge is base64url(SHA-256(challenge)); the cleartext challenge
	// is never persisted.
	CodeChallenge       string `json:"code_challenge,omitempty"`
	CodeChallengeMethod string `json:"code_challenge_method,omitempty"`

	Properties map[string]string `json:"properties,omitempty"`
}

// ExpiresAt returns CreationTime + Lifetime.
func (c *AuthorizationCode) ExpiresAt() time.Time {
	return c.CreationTime.Add(c.Lifetime)
}

// RefreshToken is the persisted state behind a refresh token handle.
type RefreshToken struct {
	CreationTime time.Time     `json:"creation_time"`
	Lifetime     time.Duration `json:"lifetime"`
	AccessToken  *Token        `json:"access_token"`
	// Version counts rotations; it is 1 for a freshly created token.
	Version int `json:"version"`
}

// ExpiresAt returns CreationTime + Lifetime.
func (r *RefreshToken) ExpiresAt() time.Time {
	return r.CreationTime.Add(r.Lifetime)
}

// Clone returns a deep copy.
func (r *RefreshToken) Clone() *RefreshToken {
	if r == nil {
		return nil
	}
	out := *r
	out.AccessToken = r.AccessToken.Clone()
	return &out
}

// SubjectID returns the subject of the access token snapshot.
func (r *RefreshToken) SubjectID() string {
	if r.AccessToken == nil {
		return ""
	}
	return r.AccessToken.SubjectID()
}

// ClientID returns the client of the access token snapshot.
func (r *RefreshToken) ClientID() string {
	if r.AccessToken == nil {
		return ""
	}
	return r.AccessToken.ClientID
}

// SessionID returns the session of the access token snapshot.
func (r *RefreshToken) SessionID() string {
	if r.AccessToken == nil {
		return ""
	}
	return r.AccessToken.SessionID()
}

// Scopes returns the scopes of the access token snapshot.
func (r *RefreshToken) Scopes() []string {
	if r.AccessToken == nil {
		return nil
	}
	return r.AccessToken.Scopes()
}

// DeviceCode is the state of a device authorization. It is keyed by the
// device code and paired with a short user code.
type DeviceCode struct {
	CreationTime     time.Time     `json:"creation_time"`
	Lifetime         time.Duration `json:"lifetime"`
	ClientID         string        `json:"client_id"`
	Description      string        `json:"description,omitempty"`
	IsOpenID         bool          `json:"is_openid"`
	RequestedScopes  []string      `json:"requested_scopes"`
	AuthorizedScopes []string      `json:"authorized_scopes,omitempty"`
	Subject          *Subject      `json:"subject,omitempty"`
	SessionID        string        `json:"session_id,omitempty"`
	IsAuthorized     bool          `json:"is_authorized"`
	IsDenied         bool          `json:"is_denied"`
}

// ExpiresAt returns CreationTime + Lifetime.
func (d *DeviceCode) ExpiresAt() time.Time {
	return d.CreationTime.Add(d.Lifetime)
}

// Consent is a remembered consent for a subject and client.
type Consent struct {
	SubjectID    string     `json:"subject_id"`
	ClientID     string     `json:"client_id"`
	Scopes       []string   `json:"scopes"`
	CreationTime time.Time  `json:"creation_time"`
	Expiration   *time.Time `json:"expiration,omitempty"`
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"time"
)

// LocalIdentityProvider names the built-in login of the host application.
const LocalIdentityProvider = "local"

// Subject is an authenticated end user. A nil *Subject is an anonymous
// request.
type Subject struct {
	// SubjectID is the stable, unique identifier of the user ("sub").
	SubjectID string `json:"sub"`

	// AuthTime is when the user last actively authenticated.
	AuthTime time.Time `json:"auth_time"`

	// IdentityProvider names the provider that authenticated the user.
	IdentityProvider string `json:"idp,omitempty"`

	// AuthenticationMethods lists the methods used ("pwd", "mfa", ...).
	AuthenticationMethods []string `json:"amr,omitempty"`

	// Claims are additional claims established at login time.
	Claims []Claim `json:"claims,omitempty"`
}

// IsAuthenticated reports whether s represents a logged-in user.
func (s *Subject) IsAuthenticated() bool {
	return s != nil && s.SubjectID != ""
}

// GetSubjectID returns the subject id, or "" for a nil subject.
func (s *Subject) GetSubjectID() string {
	if s == nil {
		return ""
	}
	return s.SubjectID
}

// Clone returns a deep copy.
func (s *Subject) Clone() *Subject {
	if s == nil {
		return nil
	}
	out := *s
	out.AuthenticationMethods = append([]string(nil), s.AuthenticationMethods...)
	out.Claims = append([]Claim(nil), s.Claims...)
	return &out
}

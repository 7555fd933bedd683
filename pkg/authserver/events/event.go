// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package events raises structured audit events for token issuance, consent
// and refresh token lifecycle changes, and delivers them to sinks.
package events

import (
	"strconv"
	"strings"
	"time"
)

// Category groups related events.
type Category string

// Event categories.
const (
	CategoryToken       Category = "Token"
	CategoryGrants      Category = "Grants"
	CategoryInteraction Category = "Interaction"
)

// Type is the outcome an event reports.
type Type string

// Event types.
const (
	TypeSuccess     Type = "Success"
	TypeFailure     Type = "Failure"
	TypeInformation Type = "Information"
)

// Event names.
const (
	NameTokenIssuedSuccess    = "Token Issued Success"
	NameTokenIssuedFailure    = "Token Issued Failure"
	NameTokenRevoked          = "Token Revoked"
	NameConsentGranted        = "Consent granted"
	NameConsentDenied         = "Consent denied"
	NameRefreshTokenCreated   = "Refresh Token Created"
	NameRefreshTokenRotated   = "Refresh Token Rotated"
	NameRefreshTokenExtended  = "Refresh Token Extended"
	NameDeviceAuthorization   = "Device Authorization Success"
	NameGrantsRevoked         = "Grants Revoked"
)

// Event is one audit record. Token values and handles are never included.
type Event struct {
	ID        string    `json:"id"`
	Category  Category  `json:"category"`
	Name      string    `json:"name"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message,omitempty"`

	ClientID  string   `json:"client_id,omitempty"`
	SubjectID string   `json:"subject_id,omitempty"`
	GrantType string   `json:"grant_type,omitempty"`
	Scopes    []string `json:"scopes,omitempty"`
	Endpoint  string   `json:"endpoint,omitempty"`

	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`

	Details map[string]string `json:"details,omitempty"`
}

// Endpoint names used on events.
const (
	EndpointAuthorize  = "Authorize"
	EndpointToken      = "Token"
	EndpointDevice     = "DeviceAuthorization"
	EndpointRevocation = "Revocation"
)

// TokenIssuedSuccess reports tokens issued by an endpoint.
func TokenIssuedSuccess(endpoint, clientID, subjectID, grantType string, scopes []string) *Event {
	return &Event{
		Category:  CategoryToken,
		Name:      NameTokenIssuedSuccess,
		Type:      TypeSuccess,
		Endpoint:  endpoint,
		ClientID:  clientID,
		SubjectID: subjectID,
		GrantType: grantType,
		Scopes:    scopes,
	}
}

// TokenIssuedFailure reports a protocol error at an endpoint.
func TokenIssuedFailure(endpoint, clientID, grantType, errorCode, description string) *Event {
	return &Event{
		Category:         CategoryToken,
		Name:             NameTokenIssuedFailure,
		Type:             TypeFailure,
		Endpoint:         endpoint,
		ClientID:         clientID,
		GrantType:        grantType,
		Error:            errorCode,
		ErrorDescription: description,
	}
}

// TokenRevoked reports a revoked refresh or reference token.
func TokenRevoked(clientID, subjectID, tokenType string) *Event {
	return &Event{
		Category:  CategoryToken,
		Name:      NameTokenRevoked,
		Type:      TypeSuccess,
		Endpoint:  EndpointRevocation,
		ClientID:  clientID,
		SubjectID: subjectID,
		Details:   map[string]string{"token_type": tokenType},
	}
}

// ConsentGranted reports the scopes a user consented to.
func ConsentGranted(clientID, subjectID string, requested, consented []string, remember bool) *Event {
	details := map[string]string{"remembered": "false"}
	if remember {
		details["remembered"] = "true"
	}
	return &Event{
		Category:  CategoryGrants,
		Name:      NameConsentGranted,
		Type:      TypeInformation,
		ClientID:  clientID,
		SubjectID: subjectID,
		Scopes:    consented,
		Details:   withRequested(details, requested),
	}
}

// ConsentDenied reports a refused consent.
func ConsentDenied(clientID, subjectID string, requested []string) *Event {
	return &Event{
		Category:  CategoryGrants,
		Name:      NameConsentDenied,
		Type:      TypeInformation,
		ClientID:  clientID,
		SubjectID: subjectID,
		Details:   withRequested(map[string]string{}, requested),
	}
}

// RefreshTokenCreated reports a new refresh token.
func RefreshTokenCreated(clientID, subjectID string, lifetime time.Duration) *Event {
	return &Event{
		Category:  CategoryGrants,
		Name:      NameRefreshTokenCreated,
		Type:      TypeInformation,
		ClientID:  clientID,
		SubjectID: subjectID,
		Details:   map[string]string{"lifetime": lifetime.String()},
	}
}

// RefreshTokenRotated reports a one-time refresh token replaced by a new
// handle.
func RefreshTokenRotated(clientID, subjectID string, version int) *Event {
	return &Event{
		Category:  CategoryGrants,
		Name:      NameRefreshTokenRotated,
		Type:      TypeInformation,
		ClientID:  clientID,
		SubjectID: subjectID,
		Details:   map[string]string{"version": strconv.Itoa(version)},
	}
}

// RefreshTokenExtended reports a sliding lifetime extension.
func RefreshTokenExtended(clientID, subjectID string, lifetime time.Duration) *Event {
	return &Event{
		Category:  CategoryGrants,
		Name:      NameRefreshTokenExtended,
		Type:      TypeInformation,
		ClientID:  clientID,
		SubjectID: subjectID,
		Details:   map[string]string{"lifetime": lifetime.String()},
	}
}

// DeviceAuthorizationSuccess reports a started device flow.
func DeviceAuthorizationSuccess(clientID string, scopes []string) *Event {
	return &Event{
		Category: CategoryToken,
		Name:     NameDeviceAuthorization,
		Type:     TypeSuccess,
		Endpoint: EndpointDevice,
		ClientID: clientID,
		Scopes:   scopes,
	}
}

// GrantsRevoked reports a subject revoking the grants of a client, or of
// every client when clientID is empty.
func GrantsRevoked(clientID, subjectID string) *Event {
	return &Event{
		Category:  CategoryGrants,
		Name:      NameGrantsRevoked,
		Type:      TypeInformation,
		ClientID:  clientID,
		SubjectID: subjectID,
	}
}

func withRequested(details map[string]string, requested []string) map[string]string {
	if len(requested) > 0 {
		details["requested_scopes"] = strings.Join(requested, " ")
	}
	return details
}

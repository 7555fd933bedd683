// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package response builds the authorize, token and device authorization
// responses, and answers revocation and introspection requests.
package response

import (
	"errors"
	"net/http"

	"github.com/ory/fosite"
)

// ErrAuthorizationPending is the RFC 8628 error returned while the user has
// not yet answered a device authorization.
var ErrAuthorizationPending = &fosite.RFC6749Error{
	ErrorField:       "authorization_pending",
	DescriptionField: "The authorization request is still pending.",
	CodeField:        http.StatusBadRequest,
}

// ErrExpiredToken is the RFC 8628 error returned when a device code expired
// or is unknown.
var ErrExpiredToken = &fosite.RFC6749Error{
	ErrorField:       "expired_token",
	DescriptionField: "The device code has expired.",
	CodeField:        http.StatusBadRequest,
}

// invalidGrant is returned for every failure to redeem a code, refresh token
// or device code. It carries no hint so callers cannot tell a reused handle
// from an unknown one.
func invalidGrant() error {
	return fosite.ErrInvalidGrant
}

// protocolError returns the RFC 6749 error in err's chain, if any.
func protocolError(err error) (*fosite.RFC6749Error, bool) {
	var rfcErr *fosite.RFC6749Error
	if errors.As(err, &rfcErr) {
		return rfcErr, true
	}
	return nil, false
}

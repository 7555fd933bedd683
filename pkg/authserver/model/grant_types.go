// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package model

import "strings"

// Grant types a client can be configured with. The *WithPKCE variants are
// the authorization code and hybrid flows with a mandatory code challenge.
const (
	GrantTypeImplicit                  = "implicit"
	GrantTypeHybrid                    = "hybrid"
	GrantTypeHybridWithPKCE            = "hybrid_with_pkce"
	GrantTypeAuthorizationCode         = "authorization_code"
	GrantTypeAuthorizationCodeWithPKCE = "authorization_code_with_pkce"
	GrantTypeClientCredentials         = "client_credentials"
	GrantTypePassword                  = "password"
	GrantTypeRefreshToken              = "refresh_token"
	GrantTypeDeviceCode                = "urn:ietf:params:oauth:grant-type:device_code"
)

// Response types accepted at the authorize endpoint.
const (
	ResponseTypeCode             = "code"
	ResponseTypeToken            = "token"
	ResponseTypeIDToken          = "id_token"
	ResponseTypeIDTokenToken     = "id_token token"
	ResponseTypeCodeIDToken      = "code id_token"
	ResponseTypeCodeToken        = "code token"
	ResponseTypeCodeIDTokenToken = "code id_token token"
)

// Flow names the authorize flow selected by a response type.
type Flow string

// Authorize flows.
const (
	FlowAuthorizationCode Flow = "authorization_code"
	FlowImplicit          Flow = "implicit"
	FlowHybrid            Flow = "hybrid"
)

// FlowForResponseType maps a response type to its flow. The second return
// value is false for unknown response types.
func FlowForResponseType(responseType string) (Flow, bool) {
	switch responseType {
	case ResponseTypeCode:
		return FlowAuthorizationCode, true
	case ResponseTypeToken, ResponseTypeIDToken, ResponseTypeIDTokenToken:
		return FlowImplicit, true
	case ResponseTypeCodeIDToken, ResponseTypeCodeToken, ResponseTypeCodeIDTokenToken:
		return FlowHybrid, true
	default:
		return "", false
	}
}

// ResponseTypeIncludes reports whether a space-delimited response type
// contains the given component ("code", "token", "id_token").
func ResponseTypeIncludes(responseType, component string) bool {
	for _, part := range strings.Fields(responseType) {
		if part == component {
			return true
		}
	}
	return false
}

// ResponseTypeIncludesToken reports whether an access token is requested.
func ResponseTypeIncludesToken(responseType string) bool {
	return ResponseTypeIncludes(responseType, ResponseTypeToken)
}

// ResponseTypeIncludesIDToken reports whether an identity token is requested.
func ResponseTypeIncludesIDToken(responseType string) bool {
	return ResponseTypeIncludes(responseType, ResponseTypeIDToken)
}

// ResponseTypeIncludesCode reports whether an authorization code is requested.
func ResponseTypeIncludesCode(responseType string) bool {
	return ResponseTypeIncludes(responseType, ResponseTypeCode)
}

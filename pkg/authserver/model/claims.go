// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package model

import (
	"slices"
	"strconv"
	"time"
)

// Protocol claim types.
const (
	ClaimSubject             = "sub"
	ClaimIssuer              = "iss"
	ClaimAudience            = "aud"
	ClaimExpiration          = "exp"
	ClaimNotBefore           = "nbf"
	ClaimIssuedAt            = "iat"
	ClaimAuthenticationTime  = "auth_time"
	ClaimIdentityProvider    = "idp"
	ClaimAuthenticationMeth  = "amr"
	ClaimNonce               = "nonce"
	ClaimAccessTokenHash     = "at_hash"
	ClaimAuthorizationCode   = "c_hash"
	ClaimStateHash           = "s_hash"
	ClaimSessionID           = "sid"
	ClaimClientID            = "client_id"
	ClaimScope               = "scope"
	ClaimJwtID               = "jti"
	ClaimAuthContextClassRef = "acr"
	ClaimAuthorizedParty     = "azp"
	ClaimConfirmation        = "cnf"
	ClaimEvents              = "events"
)

// Standard identity claim types.
const (
	ClaimName                = "name"
	ClaimGivenName           = "given_name"
	ClaimFamilyName          = "family_name"
	ClaimMiddleName          = "middle_name"
	ClaimNickName            = "nickname"
	ClaimPreferredUserName   = "preferred_username"
	ClaimProfile             = "profile"
	ClaimPicture             = "picture"
	ClaimWebSite             = "website"
	ClaimGender              = "gender"
	ClaimBirthDate           = "birthdate"
	ClaimZoneInfo            = "zoneinfo"
	ClaimLocale              = "locale"
	ClaimUpdatedAt           = "updated_at"
	ClaimEmail               = "email"
	ClaimEmailVerified       = "email_verified"
	ClaimPhoneNumber         = "phone_number"
	ClaimPhoneNumberVerified = "phone_number_verified"
	ClaimAddress             = "address"
	ClaimRole                = "role"
)

// ProtocolClaimTypes are claim types the engine sets itself. Values for these
// types coming from a profile service are dropped.
var ProtocolClaimTypes = []string{
	ClaimSubject,
	ClaimAuthenticationTime,
	ClaimIdentityProvider,
	ClaimAuthenticationMeth,
	ClaimIssuer,
	ClaimAudience,
	ClaimExpiration,
	ClaimNotBefore,
	ClaimIssuedAt,
	ClaimNonce,
	ClaimAccessTokenHash,
	ClaimAuthorizationCode,
	ClaimStateHash,
	ClaimSessionID,
	ClaimClientID,
	ClaimScope,
	ClaimJwtID,
	ClaimAuthContextClassRef,
	ClaimAuthorizedParty,
	ClaimConfirmation,
}

// IsProtocolClaimType reports whether claimType is reserved by the engine.
func IsProtocolClaimType(claimType string) bool {
	return slices.Contains(ProtocolClaimTypes, claimType)
}

// ClaimValueType describes how a claim value is rendered in an encoded token.
type ClaimValueType string

// Claim value types.
const (
	ClaimValueTypeString  ClaimValueType = "string"
	ClaimValueTypeJSON    ClaimValueType = "json"
	ClaimValueTypeBoolean ClaimValueType = "boolean"
	ClaimValueTypeInteger ClaimValueType = "integer"
	ClaimValueTypeDouble  ClaimValueType = "double"
)

// Claim is a typed name/value fact about a subject or client.
type Claim struct {
	Type      string         `json:"type" yaml:"type" mapstructure:"type"`
	Value     string         `json:"value" yaml:"value" mapstructure:"value"`
	ValueType ClaimValueType `json:"value_type,omitempty" yaml:"value_type,omitempty" mapstructure:"value_type"`
	Issuer    string         `json:"issuer,omitempty" yaml:"issuer,omitempty" mapstructure:"issuer"`
}

// NewClaim returns a string claim.
func NewClaim(claimType, value string) Claim {
	return Claim{Type: claimType, Value: value, ValueType: ClaimValueTypeString}
}

// NewTypedClaim returns a claim with an explicit value type.
func NewTypedClaim(claimType, value string, valueType ClaimValueType) Claim {
	return Claim{Type: claimType, Value: value, ValueType: valueType}
}

// NewTimeClaim returns an integer claim holding the Unix seconds of t.
func NewTimeClaim(claimType string, t time.Time) Claim {
	return NewTypedClaim(claimType, strconv.FormatInt(t.Unix(), 10), ClaimValueTypeInteger)
}

// Equal compares the type, value and issuer. The value type is a rendering
// hint and does not take part in equality.
func (c Claim) Equal(other Claim) bool {
	return c.Type == other.Type && c.Value == other.Value && c.Issuer == other.Issuer
}

// DistinctClaims returns claims with structural duplicates removed, keeping
// the first occurrence and the original order.
func DistinctClaims(claims []Claim) []Claim {
	type claimKey struct{ claimType, value, issuer string }

	seen := make(map[claimKey]struct{}, len(claims))
	out := make([]Claim, 0, len(claims))
	for _, c := range claims {
		k := claimKey{c.Type, c.Value, c.Issuer}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// ClaimValues returns the values of every claim of the given type.
func ClaimValues(claims []Claim, claimType string) []string {
	var values []string
	for _, c := range claims {
		if c.Type == claimType {
			values = append(values, c.Value)
		}
	}
	return values
}

// FindClaim returns the first claim of the given type.
func FindClaim(claims []Claim, claimType string) (Claim, bool) {
	for _, c := range claims {
		if c.Type == claimType {
			return c, true
		}
	}
	return Claim{}, false
}

// FilterClaims returns the claims whose type is in claimTypes.
func FilterClaims(claims []Claim, claimTypes []string) []Claim {
	var out []Claim
	for _, c := range claims {
		if slices.Contains(claimTypes, c.Type) {
			out = append(out, c)
		}
	}
	return out
}

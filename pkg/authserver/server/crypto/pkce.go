// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package crypto provides hashing, key loading and random handle helpers for
// the authorization engine.
package crypto

import (
	"crypto/subtle"
	"regexp"

	"golang.org/x/oauth2"
)

// PKCE code challenge methods.
const (
	PKCEMethodPlain = "plain"
	PKCEMethodS256  = "S256"
)

// verifierPattern is the RFC 7636 Section 4.1 code_verifier grammar.
var verifierPattern = regexp.MustCompile(`^[A-Za-z0-9\-._~]{43,128}$`)

// GeneratePKCEVerifier generates a code_verifier per RFC 7636 Section 4.1.
//
// This function delegates to oauth2.GenerateVerifier() from golang.org/x/oauth2.
func GeneratePKCEVerifier() string {
	return oauth2.GenerateVerifier()
}

// ComputePKCEChallenge computes the S256 code_challenge for a verifier.
// code_challenge = BASE64URL(SHA256(code_verifier))
func ComputePKCEChallenge(verifier string) string {
	return oauth2.S256ChallengeFromVerifier(verifier)
}

// HashCodeChallenge returns the form in which a code challenge is persisted
// with an authorization code.
func HashCodeChallenge(challenge string) string {
	if challenge == "" {
		return ""
	}
	return SHA256Base64URL(challenge)
}

// VerifyPKCE checks a code_verifier against the persisted challenge hash.
// An unknown method or malformed verifier fails verification.
func VerifyPKCE(challengeHash, method, verifier string) bool {
	if challengeHash == "" || !verifierPattern.MatchString(verifier) {
		return false
	}

	var challenge string
	switch method {
	case PKCEMethodS256:
		challenge = ComputePKCEChallenge(verifier)
	case PKCEMethodPlain, "":
		challenge = verifier
	default:
		return false
	}

	return subtle.ConstantTimeCompare([]byte(HashCodeChallenge(challenge)), []byte(challengeHash)) == 1
}

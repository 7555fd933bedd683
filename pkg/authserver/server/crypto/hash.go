// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	// hash implementations registered for crypto.Hash.New
	_ "crypto/sha512"
)

// HashForAlgorithm returns the hash function paired with a JWS algorithm:
// SHA-256 for *256, SHA-384 for *384, SHA-512 for *512 and EdDSA.
func HashForAlgorithm(alg string) (crypto.Hash, error) {
	switch {
	case alg == "EdDSA":
		return crypto.SHA512, nil
	case strings.HasSuffix(alg, "256"):
		return crypto.SHA256, nil
	case strings.HasSuffix(alg, "384"):
		return crypto.SHA384, nil
	case strings.HasSuffix(alg, "512"):
		return crypto.SHA512, nil
	default:
		return 0, fmt.Errorf("no hash function for signing algorithm %q", alg)
	}
}

// CreateHashClaimValue computes an at_hash / c_hash / s_hash value: the
// left-most half of the digest of value, base64url encoded without padding.
func CreateHashClaimValue(value, alg string) (string, error) {
	h, err := HashForAlgorithm(alg)
	if err != nil {
		return "", err
	}

	hasher := h.New()
	_, _ = hasher.Write([]byte(value))
	digest := hasher.Sum(nil)

	return base64.RawURLEncoding.EncodeToString(digest[:len(digest)/2]), nil
}

// SHA256Base64URL returns base64url(SHA-256(value)) without padding.
func SHA256Base64URL(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// HandleBytes is the entropy of opaque handles (codes, refresh tokens,
// reference tokens, device codes).
const HandleBytes = 32

// UserCodeDigits is the length of numeric device user codes.
const UserCodeDigits = 9

// CreateHandle returns a new opaque handle: 32 random bytes, upper-case hex.
func CreateHandle() string {
	return strings.ToUpper(hex.EncodeToString(randomBytes(HandleBytes)))
}

// CreateUniqueID returns length random bytes, base64url encoded.
func CreateUniqueID(length int) string {
	return base64.RawURLEncoding.EncodeToString(randomBytes(length))
}

// CreateUserCode returns a numeric device user code.
func CreateUserCode() (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(UserCodeDigits), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("failed to generate user code: %w", err)
	}
	return fmt.Sprintf("%0*d", UserCodeDigits, n), nil
}

// randomBytes panics on entropy failure; crypto/rand.Read does not fail on
// supported platforms.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("crypto/rand failure: %v", err))
	}
	return b
}

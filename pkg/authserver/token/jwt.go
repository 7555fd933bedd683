// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"encoding/json"
	"fmt"

	"github.com/go-jose/go-jose/v4"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/server/keys"
	autherrors "github.com/stacklok/authcore/pkg/errors"
)

// JWT type header values.
const (
	JWTTypeAccessToken = "at+jwt"
	JWTTypeDefault     = "JWT"
)

// jwtType returns the typ header for t.
func jwtType(t *model.Token) string {
	if t.Type == model.TokenTypeAccessToken {
		return JWTTypeAccessToken
	}
	return JWTTypeDefault
}

// signJWT serializes t as a compact JWS signed with key.
func signJWT(t *model.Token, key *keys.SigningKeyData) (string, error) {
	payload, err := Payload(t)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	opts := (&jose.SignerOptions{}).
		WithType(jose.ContentType(jwtType(t))).
		WithHeader(jose.HeaderKey("kid"), key.KeyID)

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.SignatureAlgorithm(key.Algorithm),
		Key:       key.Key,
	}, opts)
	if err != nil {
		return "", autherrors.NewInternalError("failed to create signer", err)
	}

	jws, err := signer.Sign(body)
	if err != nil {
		return "", autherrors.NewInternalError("failed to sign token", err)
	}
	return jws.CompactSerialize()
}

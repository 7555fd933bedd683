// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package grants provides typed stores for authorization codes, refresh
// tokens, reference tokens, device authorizations and user consent on top
// of a storage.GrantStore.
//
// Handles are hashed with the grant type before they reach the store. The
// store therefore never holds a value that can be presented to an endpoint.
package grants

import (
	"github.com/stacklok/authcore/pkg/authserver/server/crypto"
	"github.com/stacklok/authcore/pkg/authserver/storage"
)

// HashKey derives the storage key for a handle of the given grant type:
// base64url(SHA-256(handle + ":" + type)).
func HashKey(handle string, grantType storage.GrantType) string {
	return crypto.SHA256Base64URL(handle + ":" + string(grantType))
}

// ConsentHandle is the natural key of a remembered consent.
func ConsentHandle(subjectID, clientID string) string {
	return subjectID + "|" + clientID
}

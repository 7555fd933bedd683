// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package resources

import "errors"

var (
	// ErrUnknownScope is returned when a scope matches no enabled resource.
	ErrUnknownScope = errors.New("unknown scope")

	// ErrScopeNotAllowed is returned when the client may not request a scope.
	ErrScopeNotAllowed = errors.New("scope not allowed for client")
)

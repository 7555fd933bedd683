// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"net/http"

	"github.com/stacklok/toolhive-core/httperr"
)

var (
	// ErrNotFound is returned when a grant does not exist, has expired, or
	// was stored under a different type.
	ErrNotFound = httperr.WithCode(
		errors.New("grant not found"),
		http.StatusNotFound,
	)

	// ErrInvalidGrant is returned when a grant or filter fails validation.
	ErrInvalidGrant = httperr.WithCode(
		errors.New("invalid grant"),
		http.StatusBadRequest,
	)
)

// IsNotFound reports whether err wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

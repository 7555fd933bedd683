// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package policy enforces static consistency rules over client definitions.
package policy

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/stacklok/authcore/pkg/authserver/model"
)

var (
	// ErrNoGrantTypes is returned for an empty grant type set.
	ErrNoGrantTypes = errors.New("grant types list is empty")
	// ErrGrantTypeContainsSpace is returned when an entry contains a space.
	ErrGrantTypeContainsSpace = errors.New("grant types cannot contain spaces")
	// ErrDuplicateGrantType is returned when an entry appears twice.
	ErrDuplicateGrantType = errors.New("grant types list contains duplicate values")
	// ErrForbiddenGrantTypeCombination is returned for a combination that
	// would allow a downgrade from a stronger flow to a weaker one.
	ErrForbiddenGrantTypeCombination = errors.New("grant types combination is not allowed")
)

// codeBearingGrantTypes are flows that issue authorization codes. At most one
// of them may be configured, otherwise a PKCE flow could be downgraded.
var codeBearingGrantTypes = []string{
	model.GrantTypeAuthorizationCode,
	model.GrantTypeAuthorizationCodeWithPKCE,
	model.GrantTypeHybrid,
	model.GrantTypeHybridWithPKCE,
}

// ValidateGrantTypes checks a client's grant type set.
//
// The set must be non-empty, contain no duplicates and no entry with a space.
// A single grant type is always accepted. implicit cannot be combined with
// any code-bearing flow, and no two code-bearing flows may be combined.
func ValidateGrantTypes(grantTypes []string) error {
	if len(grantTypes) == 0 {
		return ErrNoGrantTypes
	}

	seen := make(map[string]struct{}, len(grantTypes))
	for _, gt := range grantTypes {
		if strings.Contains(gt, " ") {
			return fmt.Errorf("%w: %q", ErrGrantTypeContainsSpace, gt)
		}
		if _, dup := seen[gt]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateGrantType, gt)
		}
		seen[gt] = struct{}{}
	}

	if len(grantTypes) == 1 {
		return nil
	}

	var codeBearing []string
	for _, gt := range grantTypes {
		if slices.Contains(codeBearingGrantTypes, gt) {
			codeBearing = append(codeBearing, gt)
		}
	}

	if slices.Contains(grantTypes, model.GrantTypeImplicit) && len(codeBearing) > 0 {
		return fmt.Errorf("%w: %s and %s", ErrForbiddenGrantTypeCombination, model.GrantTypeImplicit, codeBearing[0])
	}
	if len(codeBearing) > 1 {
		return fmt.Errorf("%w: %s and %s", ErrForbiddenGrantTypeCombination, codeBearing[0], codeBearing[1])
	}

	return nil
}

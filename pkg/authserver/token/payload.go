// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/stacklok/authcore/pkg/authserver/model"
	autherrors "github.com/stacklok/authcore/pkg/errors"
)

// alwaysArrayClaims are rendered as JSON arrays even with a single value.
var alwaysArrayClaims = []string{model.ClaimScope, model.ClaimAuthenticationMeth}

// Payload renders the JWT claims set of t: iss, nbf, exp and aud followed by
// the token claims grouped by type.
//
// Claims of the same type become an array. JSON-typed claim values are
// decoded: arrays are flattened into the surrounding array, objects of the
// same type are merged. Mixing an object with a non-object value of the same
// type, or a JSON value that is neither an object nor an array, is a
// configuration error.
func Payload(t *model.Token) (map[string]any, error) {
	payload := map[string]any{
		model.ClaimIssuer:     t.Issuer,
		model.ClaimNotBefore:  t.CreationTime.Unix(),
		model.ClaimExpiration: t.ExpiresAt().Unix(),
	}
	switch len(t.Audiences) {
	case 0:
	case 1:
		payload[model.ClaimAudience] = t.Audiences[0]
	default:
		payload[model.ClaimAudience] = slices.Clone(t.Audiences)
	}

	var order []string
	grouped := map[string][]model.Claim{}
	for _, c := range t.Claims {
		if _, seen := grouped[c.Type]; !seen {
			order = append(order, c.Type)
		}
		grouped[c.Type] = append(grouped[c.Type], c)
	}

	for _, claimType := range order {
		value, err := renderClaimGroup(claimType, grouped[claimType])
		if err != nil {
			return nil, err
		}
		payload[claimType] = value
	}
	return payload, nil
}

func renderClaimGroup(claimType string, group []model.Claim) (any, error) {
	var (
		values      []any
		objects     []map[string]any
		sawJSONList bool
	)

	for _, c := range group {
		v, err := claimValue(c)
		if err != nil {
			return nil, err
		}
		switch typed := v.(type) {
		case map[string]any:
			objects = append(objects, typed)
		case []any:
			sawJSONList = true
			values = append(values, typed...)
		default:
			values = append(values, typed)
		}
	}

	if len(objects) > 0 {
		if len(values) > 0 || sawJSONList {
			return nil, autherrors.NewConfigurationError(
				fmt.Sprintf("claim %q mixes JSON object and non-object values", claimType), nil)
		}
		merged := map[string]any{}
		for _, obj := range objects {
			maps.Copy(merged, obj)
		}
		return merged, nil
	}

	if len(values) == 1 && !sawJSONList && !slices.Contains(alwaysArrayClaims, claimType) {
		return values[0], nil
	}
	if values == nil {
		values = []any{}
	}
	return values, nil
}

func claimValue(c model.Claim) (any, error) {
	switch c.ValueType {
	case model.ClaimValueTypeInteger:
		if n, err := strconv.ParseInt(c.Value, 10, 64); err == nil {
			return n, nil
		}
		return c.Value, nil
	case model.ClaimValueTypeDouble:
		if f, err := strconv.ParseFloat(c.Value, 64); err == nil {
			return f, nil
		}
		return c.Value, nil
	case model.ClaimValueTypeBoolean:
		if b, err := strconv.ParseBool(c.Value); err == nil {
			return b, nil
		}
		return c.Value, nil
	case model.ClaimValueTypeJSON:
		var v any
		if err := json.Unmarshal([]byte(c.Value), &v); err != nil {
			return nil, autherrors.NewConfigurationError(fmt.Sprintf("claim %q has invalid JSON value", c.Type), err)
		}
		switch v.(type) {
		case map[string]any, []any:
			return v, nil
		default:
			return nil, autherrors.NewConfigurationError(
				fmt.Sprintf("claim %q has unsupported JSON value type %T", c.Type, v), nil)
		}
	default:
		return c.Value, nil
	}
}

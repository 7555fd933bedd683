// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package resources resolves requested scope values into identity
// resources, API scopes and API resources.
package resources

import (
	"context"
	"fmt"
	"slices"

	"github.com/stacklok/authcore/pkg/authserver/model"
)

// Store looks up resources by scope name.
type Store interface {
	// FindResourcesByScope returns the enabled identity resources, API scopes
	// and API resources named by scopes. Unknown names are ignored.
	FindResourcesByScope(ctx context.Context, scopes []string) (*model.Resources, error)
}

// MemoryStore is a Store over a fixed set of resources.
type MemoryStore struct {
	identity []model.IdentityResource
	apis     []model.APIResource
	scopes   []model.APIScope
}

// NewMemoryStore returns a MemoryStore. Duplicate names within the identity
// resources and API scopes are rejected, since both share the scope
// namespace.
func NewMemoryStore(
	identity []model.IdentityResource, apis []model.APIResource, scopes []model.APIScope,
) (*MemoryStore, error) {
	var names []string
	for _, r := range identity {
		if slices.Contains(names, r.Name) {
			return nil, fmt.Errorf("duplicate scope name %q", r.Name)
		}
		names = append(names, r.Name)
	}
	for _, s := range scopes {
		if slices.Contains(names, s.Name) {
			return nil, fmt.Errorf("duplicate scope name %q", s.Name)
		}
		names = append(names, s.Name)
	}
	if slices.Contains(names, model.ScopeOfflineAccess) {
		return nil, fmt.Errorf("%s is reserved", model.ScopeOfflineAccess)
	}

	return &MemoryStore{
		identity: slices.Clone(identity),
		apis:     slices.Clone(apis),
		scopes:   slices.Clone(scopes),
	}, nil
}

// FindResourcesByScope implements Store.
func (s *MemoryStore) FindResourcesByScope(_ context.Context, scopes []string) (*model.Resources, error) {
	out := &model.Resources{}
	for _, r := range s.identity {
		if r.Enabled && slices.Contains(scopes, r.Name) {
			out.IdentityResources = append(out.IdentityResources, r)
		}
	}
	for _, sc := range s.scopes {
		if sc.Enabled && slices.Contains(scopes, sc.Name) {
			out.APIScopes = append(out.APIScopes, sc)
		}
	}
	names := out.APIScopeNames()
	for _, api := range s.apis {
		if api.Enabled && slices.ContainsFunc(api.Scopes, func(sc string) bool { return slices.Contains(names, sc) }) {
			out.APIResources = append(out.APIResources, api)
		}
	}
	out.OfflineAccess = slices.Contains(scopes, model.ScopeOfflineAccess)
	return out, nil
}

// FindAPIResourcesByName returns the enabled API resources called names.
// Introspection uses it to authenticate resource servers.
func (s *MemoryStore) FindAPIResourcesByName(_ context.Context, names []string) ([]model.APIResource, error) {
	var out []model.APIResource
	for _, api := range s.apis {
		if api.Enabled && slices.Contains(names, api.Name) {
			out = append(out, api)
		}
	}
	return out, nil
}

var _ Store = (*MemoryStore)(nil)

// Validate resolves scopes against store. Every scope must resolve and be
// allowed for client; otherwise the returned error names the first offending
// scope. A nil client skips the allowed-scope check, which is how persisted
// artifacts are re-parsed at redemption.
func Validate(
	ctx context.Context, store Store, client *model.Client, scopes []string,
) (*model.ResourceValidationResult, error) {
	found, err := store.FindResourcesByScope(ctx, scopes)
	if err != nil {
		return nil, fmt.Errorf("failed to find resources: %w", err)
	}

	for _, scope := range scopes {
		if !resolves(found, scope) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownScope, scope)
		}
		if client != nil && !client.AllowsScope(scope) {
			return nil, fmt.Errorf("%w: %s", ErrScopeNotAllowed, scope)
		}
	}

	return &model.ResourceValidationResult{Resources: *found, Scopes: slices.Clone(scopes)}, nil
}

func resolves(r *model.Resources, scope string) bool {
	if scope == model.ScopeOfflineAccess {
		return r.OfflineAccess
	}
	return slices.ContainsFunc(r.IdentityResources, func(ir model.IdentityResource) bool { return ir.Name == scope }) ||
		slices.ContainsFunc(r.APIScopes, func(as model.APIScope) bool { return as.Name == scope })
}

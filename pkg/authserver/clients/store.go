// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package clients provides client lookup for the engine and an in-memory
// client registry that validates definitions on registration.
package clients

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/stacklok/authcore/pkg/authserver/model"
	"github.com/stacklok/authcore/pkg/authserver/policy"
	"github.com/stacklok/authcore/pkg/logger"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go Store

// ErrClientExists is returned when registering a client id twice.
var ErrClientExists = errors.New("client already registered")

// Store resolves clients by id.
type Store interface {
	// FindEnabledClientByID returns the client, or nil when it does not exist
	// or is disabled.
	FindEnabledClientByID(ctx context.Context, clientID string) (*model.Client, error)
}

// MemoryStore is a concurrency-safe in-memory client registry.
type MemoryStore struct {
	mu      sync.RWMutex
	clients map[string]*model.Client
}

// NewMemoryStore returns a MemoryStore holding clients. Each client is
// validated as by Register.
func NewMemoryStore(clients ...*model.Client) (*MemoryStore, error) {
	s := &MemoryStore{clients: make(map[string]*model.Client, len(clients))}
	for _, c := range clients {
		if err := s.Register(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Register adds a new client after checking its definition with
// policy.ValidateClient.
func (s *MemoryStore) Register(c *model.Client) error {
	if err := policy.ValidateClient(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[c.ClientID]; exists {
		return fmt.Errorf("%w: %s", ErrClientExists, c.ClientID)
	}
	s.clients[c.ClientID] = cloneClient(c)
	logger.Debugw("registered client", "clientID", c.ClientID, "grantTypes", c.AllowedGrantTypes)
	return nil
}

// Update replaces an existing client definition.
func (s *MemoryStore) Update(c *model.Client) error {
	if err := policy.ValidateClient(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[c.ClientID]; !exists {
		return fmt.Errorf("client %s is not registered", c.ClientID)
	}
	s.clients[c.ClientID] = cloneClient(c)
	return nil
}

// Remove deletes a client. Removing an unknown client is not an error.
func (s *MemoryStore) Remove(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, clientID)
}

// FindEnabledClientByID implements Store.
func (s *MemoryStore) FindEnabledClientByID(_ context.Context, clientID string) (*model.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[clientID]
	if !ok || !c.Enabled {
		return nil, nil
	}
	return cloneClient(c), nil
}

// List returns every registered client ordered by id.
func (s *MemoryStore) List() []*model.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Client, 0, len(s.clients))
	for _, c := range s.clients {
		out = append(out, cloneClient(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

func cloneClient(c *model.Client) *model.Client {
	out := *c
	out.Secrets = append([]string(nil), c.Secrets...)
	out.AllowedGrantTypes = append([]string(nil), c.AllowedGrantTypes...)
	out.RedirectURIs = append([]string(nil), c.RedirectURIs...)
	out.PostLogoutRedirectURIs = append([]string(nil), c.PostLogoutRedirectURIs...)
	out.AllowedScopes = append([]string(nil), c.AllowedScopes...)
	out.IdentityProviderRestrictions = append([]string(nil), c.IdentityProviderRestrictions...)
	out.Claims = append([]model.Claim(nil), c.Claims...)
	out.AllowedIdentityTokenSigningAlgorithms = append([]string(nil), c.AllowedIdentityTokenSigningAlgorithms...)
	return &out
}

var _ Store = (*MemoryStore)(nil)

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/logger"
)

// timedEntry wraps a value with its creation time for TTL tracking.
// A zero expiresAt means the entry never expires.
type timedEntry[T any] struct {
	value     T
	createdAt time.Time
	expiresAt time.Time
}

func (e *timedEntry[T]) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// grantKey is the composite map key. The same hashed key may exist under
// several grant types.
type grantKey struct {
	grantType GrantType
	key       string
}

// MemoryStorage implements GrantStore with an in-memory map.
// It is safe for concurrent use and suitable for development, tests and
// single-replica deployments. Grants do not survive a restart.
type MemoryStorage struct {
	mu sync.RWMutex

	grants map[grantKey]*timedEntry[*PersistedGrant]

	clock clock.PassiveClock

	// cleanupInterval is how often the background cleanup runs
	cleanupInterval time.Duration

	// stopCleanup is used to signal the cleanup goroutine to stop
	stopCleanup chan struct{}

	// cleanupDone is closed when the cleanup goroutine has fully stopped
	cleanupDone chan struct{}

	closeOnce sync.Once
}

// MemoryStorageOption configures a MemoryStorage instance.
type MemoryStorageOption func(*MemoryStorage)

// WithCleanupInterval sets a custom cleanup interval.
func WithCleanupInterval(interval time.Duration) MemoryStorageOption {
	return func(s *MemoryStorage) {
		s.cleanupInterval = interval
	}
}

// WithClock sets the clock used for expiry decisions.
func WithClock(clk clock.PassiveClock) MemoryStorageOption {
	return func(s *MemoryStorage) {
		s.clock = clk
	}
}

// NewMemoryStorage creates a new MemoryStorage instance and starts the
// background cleanup goroutine.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	s := &MemoryStorage{
		grants:          make(map[grantKey]*timedEntry[*PersistedGrant]),
		clock:           clock.RealClock{},
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		cleanupDone:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}
	if s.cleanupInterval <= 0 {
		s.cleanupInterval = DefaultCleanupInterval
	}

	go s.cleanupLoop()

	return s
}

// Health always succeeds for the in-memory backend.
func (*MemoryStorage) Health(_ context.Context) error {
	return nil
}

// Close stops the background cleanup goroutine and waits for it to finish.
// Calling Close more than once is safe.
func (s *MemoryStorage) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		<-s.cleanupDone
	})
	return nil
}

// cleanupLoop runs periodic cleanup of expired entries.
func (s *MemoryStorage) cleanupLoop() {
	defer close(s.cleanupDone)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanupExpired()
		}
	}
}

// cleanupExpired removes expired grants. Uses collect-then-delete:
// expired keys are collected under the read lock and deleted under the
// write lock, keeping write lock hold time short.
func (s *MemoryStorage) cleanupExpired() {
	now := s.clock.Now()

	s.mu.RLock()
	var expired []grantKey
	for k, v := range s.grants {
		if v.expired(now) {
			expired = append(expired, k)
		}
	}
	s.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, k := range expired {
		// Re-check: the entry may have been replaced since phase one.
		if v, ok := s.grants[k]; ok && v.expired(now) {
			delete(s.grants, k)
			removed++
		}
	}

	logger.Debugw("removed expired grants", "count", removed)
}

// Store creates or replaces a grant.
func (s *MemoryStorage) Store(_ context.Context, grant *PersistedGrant) error {
	if err := grant.Validate(); err != nil {
		return err
	}

	entry := &timedEntry[*PersistedGrant]{
		value:     grant.Clone(),
		createdAt: s.clock.Now(),
	}
	if grant.Expiration != nil {
		entry.expiresAt = *grant.Expiration
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[grantKey{grantType: grant.Type, key: grant.Key}] = entry
	return nil
}

// Get returns a copy of the live grant stored under key and grantType.
func (s *MemoryStorage) Get(_ context.Context, key string, grantType GrantType) (*PersistedGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.grants[grantKey{grantType: grantType, key: key}]
	if !ok || entry.expired(s.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, grantType)
	}
	return entry.value.Clone(), nil
}

// Take removes and returns the grant under a single write lock.
func (s *MemoryStorage) Take(_ context.Context, key string, grantType GrantType) (*PersistedGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := grantKey{grantType: grantType, key: key}
	entry, ok := s.grants[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, grantType)
	}
	delete(s.grants, k)

	if entry.expired(s.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, grantType)
	}
	return entry.value, nil
}

// Remove deletes the grant if present.
func (s *MemoryStorage) Remove(_ context.Context, key string, grantType GrantType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants, grantKey{grantType: grantType, key: key})
	return nil
}

// GetAll returns copies of the live grants matching filter.
func (s *MemoryStorage) GetAll(_ context.Context, filter Filter) ([]*PersistedGrant, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	now := s.clock.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*PersistedGrant
	for _, entry := range s.grants {
		if entry.expired(now) || !filter.Matches(entry.value) {
			continue
		}
		result = append(result, entry.value.Clone())
	}
	return result, nil
}

// RemoveAll deletes the grants matching filter, expired or not.
func (s *MemoryStorage) RemoveAll(_ context.Context, filter Filter) error {
	if err := filter.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, entry := range s.grants {
		if filter.Matches(entry.value) {
			delete(s.grants, k)
		}
	}
	return nil
}

// Stats reports per-type grant counts, including entries awaiting cleanup.
type Stats map[GrantType]int

// Stats returns the number of stored grants per type.
func (s *MemoryStorage) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(Stats, len(AllGrantTypes))
	for k := range s.grants {
		stats[k.grantType]++
	}
	return stats
}

// Compile-time interface compliance check
var _ GrantStore = (*MemoryStorage)(nil)

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/logger"
)

// Default timeouts for Redis operations.
const (
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// RedisConfig holds Redis connection configuration for runtime use.
type RedisConfig struct {
	// Addr is a standalone server address, used when SentinelConfig is nil.
	Addr string

	// DB selects the logical database for standalone connections.
	DB int

	// SentinelConfig enables Sentinel failover.
	SentinelConfig *SentinelConfig

	// ACLUserConfig enables ACL user authentication.
	ACLUserConfig *ACLUserConfig

	// KeyPrefix for multi-tenancy, e.g. "authcore:{tenant}:".
	KeyPrefix string

	// Timeouts (defaults: Dial=5s, Read=3s, Write=3s).
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SentinelConfig contains Redis Sentinel configuration.
type SentinelConfig struct {
	MasterName    string
	SentinelAddrs []string
	DB            int
}

// ACLUserConfig contains Redis ACL user authentication configuration.
type ACLUserConfig struct {
	Username string
	Password string
}

// RedisStorage implements GrantStore on Redis. Grants expire through native
// key TTLs; subject and client index sets support bulk operations.
type RedisStorage struct {
	client    redis.UniversalClient
	keyPrefix string
	clock     clock.PassiveClock
}

// NewRedisStorage creates Redis-backed storage, using Sentinel failover when
// configured. Returns error if configuration validation fails or connection
// cannot be established.
func NewRedisStorage(ctx context.Context, cfg RedisConfig) (*RedisStorage, error) {
	if err := validateRedisConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid redis configuration: %w", err)
	}

	// Apply defaults
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = DefaultReadTimeout
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultRedisKeyPrefix
	}

	var username, password string
	if cfg.ACLUserConfig != nil {
		username = cfg.ACLUserConfig.Username
		password = cfg.ACLUserConfig.Password
	}

	var client redis.UniversalClient
	if cfg.SentinelConfig != nil {
		client = redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:    cfg.SentinelConfig.MasterName,
			SentinelAddrs: cfg.SentinelConfig.SentinelAddrs,
			DB:            cfg.SentinelConfig.DB,
			Username:      username,
			Password:      password,
			DialTimeout:   cfg.DialTimeout,
			ReadTimeout:   cfg.ReadTimeout,
			WriteTimeout:  cfg.WriteTimeout,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         cfg.Addr,
			DB:           cfg.DB,
			Username:     username,
			Password:     password,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		})
	}

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		// Close the client to prevent resource leak
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return NewRedisStorageWithClient(client, cfg.KeyPrefix), nil
}

// NewRedisStorageWithClient creates a RedisStorage with a pre-configured client.
// This is useful for testing with miniredis.
func NewRedisStorageWithClient(client redis.UniversalClient, keyPrefix string) *RedisStorage {
	return &RedisStorage{
		client:    client,
		keyPrefix: keyPrefix,
		clock:     clock.RealClock{},
	}
}

func validateRedisConfig(cfg *RedisConfig) error {
	if cfg.SentinelConfig == nil {
		if cfg.Addr == "" {
			return errors.New("redis address or sentinel configuration is required")
		}
		return nil
	}
	if cfg.SentinelConfig.MasterName == "" {
		return errors.New("sentinel master name is required")
	}
	if len(cfg.SentinelConfig.SentinelAddrs) == 0 {
		return errors.New("at least one sentinel address is required")
	}
	return nil
}

// Close closes the Redis client connection.
func (s *RedisStorage) Close() error {
	return s.client.Close()
}

// Health checks Redis connectivity.
func (s *RedisStorage) Health(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStorage) grantKey(grantType GrantType, key string) string {
	return s.keyPrefix + "grant:" + string(grantType) + ":" + key
}

func (s *RedisStorage) subjectIndexKey(subjectID string) string {
	return s.keyPrefix + "idx:subject:" + subjectID
}

func (s *RedisStorage) clientIndexKey(clientID string) string {
	return s.keyPrefix + "idx:client:" + clientID
}

// indexMember identifies a grant inside an index set.
func indexMember(grantType GrantType, key string) string {
	return string(grantType) + ":" + key
}

func parseIndexMember(member string) (GrantType, string, bool) {
	grantType, key, ok := strings.Cut(member, ":")
	return GrantType(grantType), key, ok
}

// Store writes the grant with its remaining TTL and adds it to the subject
// and client indexes. Grants that are already expired are not written.
func (s *RedisStorage) Store(ctx context.Context, grant *PersistedGrant) error {
	if err := grant.Validate(); err != nil {
		return err
	}

	var ttl time.Duration
	if remaining, expires := grant.TTL(s.clock.Now()); expires {
		if remaining <= 0 {
			logger.Debugw("skipping store of expired grant", "type", grant.Type, "clientID", grant.ClientID)
			return nil
		}
		ttl = remaining
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("failed to marshal grant: %w", err)
	}

	member := indexMember(grant.Type, grant.Key)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.grantKey(grant.Type, grant.Key), data, ttl)
		pipe.SAdd(ctx, s.clientIndexKey(grant.ClientID), member)
		if grant.SubjectID != "" {
			pipe.SAdd(ctx, s.subjectIndexKey(grant.SubjectID), member)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store grant: %w", err)
	}
	return nil
}

// Get returns the grant stored under key and grantType.
func (s *RedisStorage) Get(ctx context.Context, key string, grantType GrantType) (*PersistedGrant, error) {
	data, err := s.client.Get(ctx, s.grantKey(grantType, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, grantType)
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return s.decodeLive(data, grantType)
}

// Take uses GETDEL so that exactly one concurrent caller observes the grant.
func (s *RedisStorage) Take(ctx context.Context, key string, grantType GrantType) (*PersistedGrant, error) {
	data, err := s.client.GetDel(ctx, s.grantKey(grantType, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, grantType)
		}
		return nil, fmt.Errorf("failed to take grant: %w", err)
	}

	grant, err := decodeGrant(data)
	if err != nil {
		return nil, err
	}
	s.unindex(ctx, grant)

	if grant.IsExpired(s.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, grantType)
	}
	return grant, nil
}

// Remove deletes the grant and its index entries.
func (s *RedisStorage) Remove(ctx context.Context, key string, grantType GrantType) error {
	data, err := s.client.GetDel(ctx, s.grantKey(grantType, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("failed to remove grant: %w", err)
	}
	if grant, err := decodeGrant(data); err == nil {
		s.unindex(ctx, grant)
	}
	return nil
}

// GetAll reads the subject index (or the client index when no subject is
// given) and returns the live grants that match filter. Index members whose
// grant has expired are pruned.
func (s *RedisStorage) GetAll(ctx context.Context, filter Filter) ([]*PersistedGrant, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	indexKey := s.clientIndexKey(filter.ClientID)
	if filter.SubjectID != "" {
		indexKey = s.subjectIndexKey(filter.SubjectID)
	}

	members, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read grant index: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	valid := make([]string, 0, len(members))
	for _, member := range members {
		grantType, key, ok := parseIndexMember(member)
		if !ok {
			continue
		}
		if len(filter.Types) > 0 && !slices.Contains(filter.Types, grantType) {
			continue
		}
		keys = append(keys, s.grantKey(grantType, key))
		valid = append(valid, member)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read grants: %w", err)
	}

	now := s.clock.Now()
	var stale []any
	var result []*PersistedGrant
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			stale = append(stale, valid[i])
			continue
		}
		grant, err := decodeGrant([]byte(raw))
		if err != nil {
			logger.Warnw("skipping undecodable grant", "error", err)
			continue
		}
		if grant.IsExpired(now) || !filter.Matches(grant) {
			continue
		}
		result = append(result, grant)
	}

	if len(stale) > 0 {
		// Best effort: expired keys leave their index members behind.
		_ = s.client.SRem(ctx, indexKey, stale...).Err()
	}

	return result, nil
}

// RemoveAll deletes the grants matching filter along with their index entries.
func (s *RedisStorage) RemoveAll(ctx context.Context, filter Filter) error {
	grants, err := s.GetAll(ctx, filter)
	if err != nil {
		return err
	}
	if len(grants) == 0 {
		return nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, grant := range grants {
			member := indexMember(grant.Type, grant.Key)
			pipe.Del(ctx, s.grantKey(grant.Type, grant.Key))
			pipe.SRem(ctx, s.clientIndexKey(grant.ClientID), member)
			if grant.SubjectID != "" {
				pipe.SRem(ctx, s.subjectIndexKey(grant.SubjectID), member)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove grants: %w", err)
	}
	return nil
}

// unindex removes a grant from its index sets. Errors are ignored; stale
// members are pruned by GetAll.
func (s *RedisStorage) unindex(ctx context.Context, grant *PersistedGrant) {
	member := indexMember(grant.Type, grant.Key)
	_ = s.client.SRem(ctx, s.clientIndexKey(grant.ClientID), member).Err()
	if grant.SubjectID != "" {
		_ = s.client.SRem(ctx, s.subjectIndexKey(grant.SubjectID), member).Err()
	}
}

func (s *RedisStorage) decodeLive(data []byte, grantType GrantType) (*PersistedGrant, error) {
	grant, err := decodeGrant(data)
	if err != nil {
		return nil, err
	}
	if grant.IsExpired(s.clock.Now()) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, grantType)
	}
	return grant, nil
}

func decodeGrant(data []byte) (*PersistedGrant, error) {
	var grant PersistedGrant
	if err := json.Unmarshal(data, &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal grant: %w", err)
	}
	return &grant, nil
}

// Compile-time interface compliance check
var _ GrantStore = (*RedisStorage)(nil)

// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"fmt"
	"time"
)

// Type represents the type of storage backend.
type Type string

const (
	// TypeMemory uses in-memory storage (default).
	TypeMemory Type = "memory"

	// TypeRedis uses Redis, standalone or behind Sentinel.
	TypeRedis Type = "redis"

	// TypeSQLite uses a local SQLite database file.
	TypeSQLite Type = "sqlite"
)

const (
	// DefaultCleanupInterval is how often the in-memory cleanup runs.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultRedisKeyPrefix namespaces grant keys in a shared Redis.
	DefaultRedisKeyPrefix = "authcore:"
)

// Config configures the storage backend.
type Config struct {
	// Type specifies the storage backend type. Defaults to memory.
	Type Type `mapstructure:"type" yaml:"type,omitempty"`

	// CleanupInterval controls the in-memory expiry sweep.
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" yaml:"cleanup_interval,omitempty"`

	// Redis is required when Type is redis.
	Redis *RedisRunConfig `mapstructure:"redis" yaml:"redis,omitempty"`

	// SQLite is required when Type is sqlite.
	SQLite *SQLiteConfig `mapstructure:"sqlite" yaml:"sqlite,omitempty"`
}

// RedisRunConfig is the serializable form of RedisConfig.
type RedisRunConfig struct {
	// Addr is a standalone server address. Ignored when SentinelAddrs is set.
	Addr string `mapstructure:"addr" yaml:"addr,omitempty"`

	MasterName    string   `mapstructure:"master_name" yaml:"master_name,omitempty"`
	SentinelAddrs []string `mapstructure:"sentinel_addrs" yaml:"sentinel_addrs,omitempty"`
	DB            int      `mapstructure:"db" yaml:"db,omitempty"`

	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`

	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix,omitempty"`

	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout,omitempty"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout,omitempty"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout,omitempty"`
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the database file. Created if missing.
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Type:            TypeMemory,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// Validate checks that the selected backend has its settings.
func (c *Config) Validate() error {
	switch c.Type {
	case "", TypeMemory:
		return nil
	case TypeRedis:
		if c.Redis == nil {
			return fmt.Errorf("redis configuration is required for storage type %q", c.Type)
		}
		if c.Redis.Addr == "" && len(c.Redis.SentinelAddrs) == 0 {
			return fmt.Errorf("redis requires addr or sentinel_addrs")
		}
		if len(c.Redis.SentinelAddrs) > 0 && c.Redis.MasterName == "" {
			return fmt.Errorf("redis sentinel requires master_name")
		}
		return nil
	case TypeSQLite:
		if c.SQLite == nil || c.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required for storage type %q", c.Type)
		}
		return nil
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Type)
	}
}

// ToRedisConfig converts the serializable form into runtime configuration.
func (r *RedisRunConfig) ToRedisConfig() RedisConfig {
	cfg := RedisConfig{
		Addr:         r.Addr,
		DB:           r.DB,
		KeyPrefix:    r.KeyPrefix,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
	}
	if len(r.SentinelAddrs) > 0 {
		cfg.SentinelConfig = &SentinelConfig{
			MasterName:    r.MasterName,
			SentinelAddrs: r.SentinelAddrs,
			DB:            r.DB,
		}
	}
	if r.Username != "" || r.Password != "" {
		cfg.ACLUserConfig = &ACLUserConfig{Username: r.Username, Password: r.Password}
	}
	return cfg
}

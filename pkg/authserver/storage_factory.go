// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"context"
	"fmt"

	"k8s.io/utils/clock"

	"github.com/stacklok/authcore/pkg/authserver/storage"
	"github.com/stacklok/authcore/pkg/authserver/storage/sqlite"
	autherrors "github.com/stacklok/authcore/pkg/errors"
	"github.com/stacklok/authcore/pkg/logger"
)

// NewGrantStore creates the GrantStore selected by cfg. A nil cfg selects
// in-memory storage.
func NewGrantStore(ctx context.Context, cfg *storage.Config, clk clock.PassiveClock) (storage.GrantStore, error) {
	if cfg == nil {
		cfg = storage.DefaultConfig()
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Type {
	case storage.TypeMemory, "":
		opts := []storage.MemoryStorageOption{storage.WithClock(clk)}
		if cfg.CleanupInterval > 0 {
			opts = append(opts, storage.WithCleanupInterval(cfg.CleanupInterval))
		}
		logger.Debugw("using in-memory grant storage")
		return storage.NewMemoryStorage(opts...), nil

	case storage.TypeRedis:
		logger.Debugw("using redis grant storage", "sentinel", len(cfg.Redis.SentinelAddrs) > 0)
		store, err := storage.NewRedisStorage(ctx, cfg.Redis.ToRedisConfig())
		if err != nil {
			return nil, autherrors.NewStorageError("failed to create redis grant storage", err)
		}
		return store, nil

	case storage.TypeSQLite:
		logger.Debugw("using sqlite grant storage", "path", cfg.SQLite.Path)
		store, err := sqlite.OpenGrantStore(ctx, cfg.SQLite.Path, sqlite.WithClock(clk))
		if err != nil {
			return nil, autherrors.NewStorageError("failed to open sqlite database", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

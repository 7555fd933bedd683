// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package authserver

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	autherrors "github.com/stacklok/authcore/pkg/errors"
	"github.com/stacklok/authcore/pkg/logger"
)

// EnvPrefix prefixes the environment variables that override file settings,
// e.g. AUTHCORE_STORAGE_REDIS_PASSWORD for storage.redis.password.
const EnvPrefix = "AUTHCORE"

// envKeys are the settings that can be supplied through the environment
// alone. Keys present in the file are overridable without being listed.
var envKeys = []string{
	"issuer",
	"emit_static_audience_claim",
	"keys.key_dir",
	"keys.signing_key_file",
	"keys.algorithm",
	"keys.secret_id",
	"keys.secret_region",
	"keys.secret_version_stage",
	"storage.type",
	"storage.redis.addr",
	"storage.redis.username",
	"storage.redis.password",
	"storage.redis.key_prefix",
	"storage.sqlite.path",
	"events.log",
	"events.amqp.url",
	"device.verification_uri",
}

// LoadConfig reads the YAML or JSON file at path, applies environment
// overrides and defaults, and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	logger.Debugw("loading authserver config", "path", path)
	if err := v.ReadInConfig(); err != nil {
		return nil, autherrors.NewConfigurationError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, autherrors.NewConfigurationError("failed to decode config", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

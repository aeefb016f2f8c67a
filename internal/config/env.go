// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"strconv"
	"time"

	"github.com/roto31/exstreamtv/internal/log"
)

const envPrefix = "EXSTREAM_"

// ParseString reads key (with the EXSTREAM_ prefix) from the environment,
// falling back to defaultValue and logging the source either way.
func ParseString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	full := envPrefix + key
	if v, ok := os.LookupEnv(full); ok && v != "" {
		logger.Debug().Str("key", full).Str("source", "environment").Msg("using environment variable")
		return v
	}
	logger.Debug().Str("key", full).Str("default", defaultValue).Str("source", "default").Msg("using default value")
	return defaultValue
}

// ParseInt reads an integer env var, falling back to defaultValue on
// absence or parse failure.
func ParseInt(key string, defaultValue int) int {
	logger := log.WithComponent("config")
	full := envPrefix + key
	if v, ok := os.LookupEnv(full); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			logger.Debug().Str("key", full).Int("value", i).Msg("using environment variable")
			return i
		}
		logger.Warn().Str("key", full).Str("value", v).Msg("invalid integer, using default")
	}
	return defaultValue
}

// ParseFloat reads a float64 env var, falling back to defaultValue on
// absence or parse failure.
func ParseFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	full := envPrefix + key
	if v, ok := os.LookupEnv(full); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			logger.Debug().Str("key", full).Float64("value", f).Msg("using environment variable")
			return f
		}
		logger.Warn().Str("key", full).Str("value", v).Msg("invalid float, using default")
	}
	return defaultValue
}

// ParseBool reads a boolean env var, falling back to defaultValue on
// absence or parse failure.
func ParseBool(key string, defaultValue bool) bool {
	logger := log.WithComponent("config")
	full := envPrefix + key
	if v, ok := os.LookupEnv(full); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			logger.Debug().Str("key", full).Bool("value", b).Msg("using environment variable")
			return b
		}
		logger.Warn().Str("key", full).Str("value", v).Msg("invalid bool, using default")
	}
	return defaultValue
}

// ParseDuration reads a time.Duration env var (Go duration syntax, e.g.
// "30s"), falling back to defaultValue on absence or parse failure.
func ParseDuration(key string, defaultValue time.Duration) time.Duration {
	logger := log.WithComponent("config")
	full := envPrefix + key
	if v, ok := os.LookupEnv(full); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			logger.Debug().Str("key", full).Dur("value", d).Msg("using environment variable")
			return d
		}
		logger.Warn().Str("key", full).Str("value", v).Msg("invalid duration, using default")
	}
	return defaultValue
}

// ApplyEnvOverrides overlays EXSTREAM_ environment variables on top of cfg,
// touching only the top-level scalars a deployment commonly overrides
// without editing the YAML file.
func ApplyEnvOverrides(cfg AppConfig) AppConfig {
	cfg.ListenAddr = ParseString("LISTEN_ADDR", cfg.ListenAddr)
	cfg.DataDir = ParseString("DATA_DIR", cfg.DataDir)
	cfg.DeviceID = ParseString("DEVICE_ID", cfg.DeviceID)
	cfg.FriendlyName = ParseString("FRIENDLY_NAME", cfg.FriendlyName)
	cfg.TunerCount = ParseInt("TUNER_COUNT", cfg.TunerCount)
	cfg.CatalogDBPath = ParseString("CATALOG_DB_PATH", cfg.CatalogDBPath)
	cfg.Pool.CapacityMax = ParseInt("POOL_CAPACITY_MAX", cfg.Pool.CapacityMax)
	cfg.Pool.SpawnsPerSecond = ParseFloat("POOL_SPAWNS_PER_SECOND", cfg.Pool.SpawnsPerSecond)
	cfg.Governor.ChannelCooldown = ParseDuration("GOVERNOR_CHANNEL_COOLDOWN", cfg.Governor.ChannelCooldown)
	cfg.Session.RedisAddr = ParseString("SESSION_REDIS_ADDR", cfg.Session.RedisAddr)
	return cfg
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads and validates the exstreamtv deployment
// configuration: a YAML file describing channels, pool/breaker/governor
// tuning, and the HDHomeRun boundary identity, overlaid with EXSTREAM_
// environment variables and hot-reloaded on SIGHUP or file change.
package config

import "time"

// AppConfig is the root configuration document.
type AppConfig struct {
	ListenAddr  string           `yaml:"listenAddr"`
	DataDir     string           `yaml:"dataDir"`
	DeviceID    string           `yaml:"deviceId"`
	FriendlyName string          `yaml:"friendlyName"`
	TunerCount  int              `yaml:"tunerCount"`

	// CatalogDBPath, when set, points at a read-only sqlite database
	// holding Channel/ProgramSchedule/PlayoutItem records (internal/
	// catalogread). Channels whose ID has ProgramSchedule rows there get a
	// TimeSlot scheduler instead of their YAML schedule's linear order.
	CatalogDBPath string `yaml:"catalogDbPath"`

	Pool     PoolConfig     `yaml:"pool"`
	Breaker  BreakerConfig  `yaml:"breaker"`
	Governor GovernorConfig `yaml:"governor"`
	Throttle ThrottleConfig `yaml:"throttle"`
	Session  SessionConfig `yaml:"session"`

	Channels []ChannelConfig `yaml:"channels"`
}

// PoolConfig mirrors internal/pool.Config's tunable fields.
type PoolConfig struct {
	CapacityMax          int     `yaml:"capacityMax"`
	SpawnsPerSecond       float64 `yaml:"spawnsPerSecond"`
	MemoryGuardThreshold  float64 `yaml:"memoryGuardThreshold"`
	FdGuardReserve        int     `yaml:"fdGuardReserve"`
}

// BreakerConfig mirrors internal/breaker.Config.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failureThreshold"`
	FailureWindow    time.Duration `yaml:"failureWindow"`
	Cooldown         time.Duration `yaml:"cooldown"`
	ProbeUpSeconds   int           `yaml:"probeUpSeconds"`
}

// GovernorConfig mirrors internal/governor.Config.
type GovernorConfig struct {
	GlobalRestartsPerWindow int           `yaml:"globalRestartsPerWindow"`
	GlobalWindow            time.Duration `yaml:"globalWindow"`
	ChannelCooldown         time.Duration `yaml:"channelCooldown"`
}

// ThrottleConfig mirrors internal/throttle.Config.
type ThrottleConfig struct {
	Mode                 string  `yaml:"mode"`
	TargetBytesPerSecond float64 `yaml:"targetBytesPerSecond"`
	BurstFactor          float64 `yaml:"burstFactor"`
}

// SessionConfig mirrors internal/session.Config.
type SessionConfig struct {
	MaxSessionsPerChannel int           `yaml:"maxSessionsPerChannel"`
	IdleTimeout           time.Duration `yaml:"idleTimeout"`
	RedisAddr             string        `yaml:"redisAddr"`
}

// ChannelConfig describes one statically-configured channel entity.
type ChannelConfig struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Number      string `yaml:"number"`
	ScheduleRef string `yaml:"scheduleRef"`
}

// Default returns the baseline configuration applied before YAML/env
// overlays.
func Default() AppConfig {
	return AppConfig{
		ListenAddr:   ":8080",
		DataDir:      "/var/lib/exstreamtv",
		TunerCount:   4,
		Pool:         PoolConfig{CapacityMax: 150, SpawnsPerSecond: 5, MemoryGuardThreshold: 0.85, FdGuardReserve: 100},
		Breaker:      BreakerConfig{FailureThreshold: 5, FailureWindow: 300 * time.Second, Cooldown: 120 * time.Second, ProbeUpSeconds: 30},
		Governor:     GovernorConfig{GlobalRestartsPerWindow: 10, GlobalWindow: 60 * time.Second, ChannelCooldown: 30 * time.Second},
		Throttle:     ThrottleConfig{Mode: "realtime", BurstFactor: 1.1},
		Session:      SessionConfig{MaxSessionsPerChannel: 50, IdleTimeout: 300 * time.Second},
	}
}

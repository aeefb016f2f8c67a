// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"
	"regexp"
	"strings"
)

// deviceIDPattern implements I8: DeviceID must be exactly 8 hex digits.
var deviceIDPattern = regexp.MustCompile(`^[0-9A-Fa-f]{8}$`)

// ExitCode classifies a validation outcome: 0 clean, 1 a config problem the
// operator should fix, 2 a structural error (missing file, unparsable YAML).
// cmd/exstreamtv does not map it onto its exit status; any load or
// validation failure there exits with status 1.
type ExitCode int

const (
	ExitOK          ExitCode = 0
	ExitInvalid     ExitCode = 1
	ExitUnreadable  ExitCode = 2
)

// ValidationError carries the ExitCode a caller should propagate alongside
// the human-readable message.
type ValidationError struct {
	Code ExitCode
	Msgs []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %d validation error(s): %s", len(e.Msgs), strings.Join(e.Msgs, "; "))
}

// Validate checks cfg for internal consistency. It collects every problem
// found rather than stopping at the first, so an operator sees the whole
// list in one pass.
func Validate(cfg AppConfig) error {
	var msgs []string

	if cfg.ListenAddr == "" {
		msgs = append(msgs, "listenAddr must not be empty")
	}
	if cfg.DataDir == "" {
		msgs = append(msgs, "dataDir must not be empty")
	}
	if cfg.DeviceID != "" && !deviceIDPattern.MatchString(cfg.DeviceID) {
		msgs = append(msgs, fmt.Sprintf("deviceId %q must be exactly 8 hex digits (I8)", cfg.DeviceID))
	}
	if cfg.TunerCount <= 0 {
		msgs = append(msgs, "tunerCount must be positive")
	}

	if cfg.Pool.CapacityMax <= 0 {
		msgs = append(msgs, "pool.capacityMax must be positive")
	}
	if cfg.Pool.SpawnsPerSecond <= 0 {
		msgs = append(msgs, "pool.spawnsPerSecond must be positive")
	}
	if cfg.Pool.MemoryGuardThreshold <= 0 || cfg.Pool.MemoryGuardThreshold > 1 {
		msgs = append(msgs, "pool.memoryGuardThreshold must be in (0, 1]")
	}

	if cfg.Breaker.FailureThreshold <= 0 {
		msgs = append(msgs, "breaker.failureThreshold must be positive")
	}
	if cfg.Breaker.Cooldown <= 0 {
		msgs = append(msgs, "breaker.cooldown must be positive")
	}

	if cfg.Governor.GlobalRestartsPerWindow <= 0 {
		msgs = append(msgs, "governor.globalRestartsPerWindow must be positive")
	}
	if cfg.Governor.ChannelCooldown <= 0 {
		msgs = append(msgs, "governor.channelCooldown must be positive")
	}

	seen := make(map[string]bool, len(cfg.Channels))
	for _, ch := range cfg.Channels {
		if ch.ID == "" {
			msgs = append(msgs, "every channel must have a non-empty id (I7)")
			continue
		}
		if seen[ch.ID] {
			msgs = append(msgs, fmt.Sprintf("duplicate channel id %q (I7 requires stable, unique ids)", ch.ID))
		}
		seen[ch.ID] = true
	}

	if len(msgs) == 0 {
		return nil
	}
	return &ValidationError{Code: ExitInvalid, Msgs: msgs}
}

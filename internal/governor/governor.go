// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package governor implements the RestartGovernor (C4): the sole entry
// point for restart requests. Every path that would restart a channel must
// call RequestRestart; direct start/stop from outside is forbidden.
package governor

import (
	"sync"
	"time"

	"github.com/roto31/exstreamtv/internal/breaker"
	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/metrics"
)

// Decision is the outcome of a restart request.
type Decision string

const (
	Allowed           Decision = "Allowed"
	DeniedThrottle     Decision = "DeniedThrottle"
	DeniedCooldown     Decision = "DeniedCooldown"
	DeniedBreakerOpen  Decision = "DeniedBreakerOpen"
)

// Config holds the governor's thresholds.
type Config struct {
	GlobalRestartsPerWindow int
	GlobalWindow            time.Duration
	ChannelCooldown         time.Duration
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		GlobalRestartsPerWindow: 10,
		GlobalWindow:            60 * time.Second,
		ChannelCooldown:         30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GlobalRestartsPerWindow <= 0 {
		c.GlobalRestartsPerWindow = d.GlobalRestartsPerWindow
	}
	if c.GlobalWindow <= 0 {
		c.GlobalWindow = d.GlobalWindow
	}
	if c.ChannelCooldown <= 0 {
		c.ChannelCooldown = d.ChannelCooldown
	}
	return c
}

// Governor is the sole restart entry point (I1-I3).
type Governor struct {
	cfg   Config
	clock clock.Clock
	br    *breaker.Manager

	mu           sync.Mutex
	globalEvents []time.Time
	lastRestart  map[string]time.Time
}

// New creates a RestartGovernor sharing br for per-channel breaker state.
func New(cfg Config, c clock.Clock, br *breaker.Manager) *Governor {
	if c == nil {
		c = clock.System()
	}
	return &Governor{
		cfg:         cfg.withDefaults(),
		clock:       c,
		br:          br,
		lastRestart: make(map[string]time.Time),
	}
}

// RequestRestart evaluates the global throttle, per-channel cooldown, and
// breaker state, in that order, and records an Allowed attempt in the
// global window and as the channel's last restart time. The breaker itself
// only sees the attempt through its Allow call and, later, RecordOutcome.
func (g *Governor) RequestRestart(channelID string, cause string) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.pruneGlobalLocked(now)

	if len(g.globalEvents) >= g.cfg.GlobalRestartsPerWindow {
		metrics.RecordRestartDecision(string(DeniedThrottle))
		return DeniedThrottle
	}

	if last, ok := g.lastRestart[channelID]; ok {
		if now.Sub(last) < g.cfg.ChannelCooldown {
			metrics.RecordRestartDecision(string(DeniedCooldown))
			return DeniedCooldown
		}
	}

	if g.br != nil && !g.br.For(channelID).Allow() {
		metrics.RecordRestartDecision(string(DeniedBreakerOpen))
		return DeniedBreakerOpen
	}

	g.globalEvents = append(g.globalEvents, now)
	g.lastRestart[channelID] = now
	metrics.RecordRestartDecision(string(Allowed))
	return Allowed
}

// RecordOutcome forwards the attempt's technical outcome to the channel's
// breaker so CLOSED/OPEN/HALF_OPEN transitions stay in sync with restarts
// actually granted by this governor.
func (g *Governor) RecordOutcome(channelID string, failed bool, upFor time.Duration) {
	if g.br == nil {
		return
	}
	b := g.br.For(channelID)
	if failed {
		b.RecordFailure()
		return
	}
	b.RecordProbeSurvived(upFor)
}

func (g *Governor) pruneGlobalLocked(now time.Time) {
	cutoff := now.Add(-g.cfg.GlobalWindow)
	kept := g.globalEvents[:0]
	for _, t := range g.globalEvents {
		if !t.Before(cutoff) {
			kept = append(kept, t)
		}
	}
	g.globalEvents = kept
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package breaker implements the per-channel circuit breaker (C3):
// CLOSED/OPEN/HALF_OPEN state machine over a sliding failure window, with a
// single in-flight half-open probe per channel.
package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/metrics"
)

// State is one of CLOSED, OPEN, HALF_OPEN.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrProbeBusy is returned when a half-open probe is already in flight for
// the channel and a second concurrent start is rejected.
var ErrProbeBusy = errors.New("breaker: half-open probe already in flight")

// Config holds the per-channel thresholds.
type Config struct {
	FailureThreshold int           // failures within FailureWindow that trip OPEN
	FailureWindow    time.Duration // sliding window for counting failures
	Cooldown         time.Duration // OPEN duration before a HALF_OPEN probe is allowed
	ProbeUpSeconds   time.Duration // how long a post-open start must survive to close
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		FailureWindow:    300 * time.Second,
		Cooldown:         120 * time.Second,
		ProbeUpSeconds:   30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FailureWindow <= 0 {
		c.FailureWindow = d.FailureWindow
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.ProbeUpSeconds <= 0 {
		c.ProbeUpSeconds = d.ProbeUpSeconds
	}
	return c
}

type failureEvent struct {
	at time.Time
}

// Breaker is one channel's circuit breaker state machine.
type Breaker struct {
	mu sync.Mutex

	name  string
	cfg   Config
	clock clock.Clock

	state    State
	openedAt time.Time

	failures []failureEvent

	probePending   bool
	probeStartedAt time.Time
}

// New creates a breaker for a single channel.
func New(name string, cfg Config, c clock.Clock) *Breaker {
	cfg = cfg.withDefaults()
	if c == nil {
		c = clock.System()
	}
	b := &Breaker{name: name, cfg: cfg, clock: c, state: Closed}
	metrics.SetCircuitBreakerState(name, b.state.String())
	return b
}

// Allow reports whether a start attempt for this channel may proceed now.
// It performs the OPEN -> HALF_OPEN transition on cooldown expiry and
// enforces the single-in-flight-probe rule.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune()

	switch b.state {
	case Closed:
		return true
	case Open:
		if b.clock.Now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.transition(HalfOpen)
			b.probePending = true
			b.probeStartedAt = b.clock.Now()
			return true
		}
		return false
	case HalfOpen:
		if b.probePending {
			return false
		}
		b.probePending = true
		b.probeStartedAt = b.clock.Now()
		return true
	default:
		return false
	}
}

// RecordFailure records a technical failure of an attempted start. In CLOSED
// it accumulates toward the failure threshold; in HALF_OPEN a single failure
// immediately re-opens the breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.clock.Now()
	b.failures = append(b.failures, failureEvent{at: now})
	b.prune()

	switch b.state {
	case HalfOpen:
		b.probePending = false
		b.transition(Open)
	case Closed:
		if len(b.failures) >= b.cfg.FailureThreshold {
			b.transition(Open)
		}
	}
}

// RecordProbeSurvived is called once a half-open probe has stayed up for at
// least cfg.ProbeUpSeconds; it closes the breaker. Calls before that
// threshold, or outside HALF_OPEN, are no-ops.
func (b *Breaker) RecordProbeSurvived(upFor time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != HalfOpen {
		return
	}
	if upFor >= b.cfg.ProbeUpSeconds {
		b.probePending = false
		b.failures = nil
		b.transition(Closed)
	}
}

// State returns the current state for metrics/inspection.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) prune() {
	cutoff := b.clock.Now().Add(-b.cfg.FailureWindow)
	kept := b.failures[:0]
	for _, f := range b.failures {
		if !f.at.Before(cutoff) {
			kept = append(kept, f)
		}
	}
	b.failures = kept
}

func (b *Breaker) transition(s State) {
	if b.state == s {
		return
	}
	b.state = s
	if s == Open {
		b.openedAt = b.clock.Now()
		metrics.RecordCircuitBreakerTrip(b.name)
	}
	metrics.SetCircuitBreakerState(b.name, s.String())
}

// Manager owns one Breaker per channel, created lazily on first use.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	clock  clock.Clock
	byName map[string]*Breaker
}

// NewManager creates a breaker manager shared across all channels.
func NewManager(cfg Config, c clock.Clock) *Manager {
	if c == nil {
		c = clock.System()
	}
	return &Manager{cfg: cfg.withDefaults(), clock: c, byName: make(map[string]*Breaker)}
}

// For returns (creating if needed) the breaker for channelID.
func (m *Manager) For(channelID string) *Breaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.byName[channelID]
	if !ok {
		b = New(channelID, m.cfg, m.clock)
		m.byName[channelID] = b
	}
	return b
}

// States returns a snapshot of every known channel's current state, keyed by
// channel ID, for health/readiness reporting.
func (m *Manager) States() map[string]State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]State, len(m.byName))
	for name, b := range m.byName {
		out[name] = b.State()
	}
	return out
}

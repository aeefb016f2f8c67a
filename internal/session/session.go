// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session implements the SessionManager (C11): it tracks open
// client connections per channel, enforces the per-channel session cap
// (I10), reaps idle sessions, and accumulates bounded error counts so a
// flaky client doesn't grow memory unbounded. State is sharded by channel
// to keep contention local, the same way the Redis mirror shards by key.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/metrics"
)

// ErrSessionCapExceeded is returned by Open when a channel is already at
// its configured session cap (I10).
var ErrSessionCapExceeded = errors.New("session: per-channel cap exceeded")

// Session is one open client connection to a channel's stream.
type Session struct {
	ID         string
	ChannelID  string
	RemoteAddr string
	OpenedAt   time.Time
	lastActive time.Time
	bytesOut   int64
	errorCount int
}

// Snapshot is a point-in-time, lock-free copy of a Session for callers that
// only need to read.
type Snapshot struct {
	ID         string
	ChannelID  string
	RemoteAddr string
	OpenedAt   time.Time
	LastActive time.Time
	BytesOut   int64
	ErrorCount int
}

// Config configures a Manager.
type Config struct {
	MaxSessionsPerChannel int
	IdleTimeout           time.Duration
	MaxErrorsBeforeClose  int
}

// DefaultConfig matches spec §4.11's defaults: 50 sessions/channel, 300s
// idle timeout.
func DefaultConfig() Config {
	return Config{MaxSessionsPerChannel: 50, IdleTimeout: 300 * time.Second, MaxErrorsBeforeClose: 50}
}

func (c Config) withDefaults() Config {
	if c.MaxSessionsPerChannel <= 0 {
		c.MaxSessionsPerChannel = 50
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 300 * time.Second
	}
	if c.MaxErrorsBeforeClose <= 0 {
		c.MaxErrorsBeforeClose = 50
	}
	return c
}

type channelShard struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// Manager tracks sessions across all channels, sharded by channel ID.
type Manager struct {
	cfg    Config
	clock  clock.Clock
	mu     sync.RWMutex
	shards map[string]*channelShard
	nextID uint64
}

// New constructs a Manager.
func New(cfg Config, c clock.Clock) *Manager {
	return &Manager{cfg: cfg.withDefaults(), clock: c, shards: make(map[string]*channelShard)}
}

func (m *Manager) shardFor(channelID string) *channelShard {
	m.mu.RLock()
	s, ok := m.shards[channelID]
	m.mu.RUnlock()
	if ok {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.shards[channelID]; ok {
		return s
	}
	s = &channelShard{sessions: make(map[string]*Session)}
	m.shards[channelID] = s
	return s
}

// Open registers a new session for channelID, enforcing I10's per-channel
// cap. The returned Session must be closed via Close when the client
// disconnects.
func (m *Manager) Open(channelID, remoteAddr string) (*Session, error) {
	shard := m.shardFor(channelID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if len(shard.sessions) >= m.cfg.MaxSessionsPerChannel {
		return nil, ErrSessionCapExceeded
	}

	now := m.clock.Now()
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	s := &Session{
		ID:         formatID(id),
		ChannelID:  channelID,
		RemoteAddr: remoteAddr,
		OpenedAt:   now,
		lastActive: now,
	}
	shard.sessions[s.ID] = s
	metrics.SessionOpen.Inc()
	return s, nil
}

// RecordBytes accounts n bytes written to sess and refreshes its idle
// timer.
func (m *Manager) RecordBytes(sess *Session, n int64) {
	shard := m.shardFor(sess.ChannelID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	sess.bytesOut += n
	sess.lastActive = m.clock.Now()
}

// RecordError accounts a transient write/read error against sess. Once
// MaxErrorsBeforeClose is reached the caller should close the session;
// RecordError reports whether that threshold has been hit.
func (m *Manager) RecordError(sess *Session) (shouldClose bool) {
	shard := m.shardFor(sess.ChannelID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	sess.errorCount++
	return sess.errorCount >= m.cfg.MaxErrorsBeforeClose
}

// Close removes sess from its channel's active set.
func (m *Manager) Close(sess *Session) {
	shard := m.shardFor(sess.ChannelID)
	shard.mu.Lock()
	delete(shard.sessions, sess.ID)
	shard.mu.Unlock()
	metrics.SessionOpen.Dec()
}

// ListByChannel returns a snapshot of every open session on channelID.
func (m *Manager) ListByChannel(channelID string) []Snapshot {
	shard := m.shardFor(channelID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	out := make([]Snapshot, 0, len(shard.sessions))
	for _, s := range shard.sessions {
		out = append(out, Snapshot{
			ID: s.ID, ChannelID: s.ChannelID, RemoteAddr: s.RemoteAddr,
			OpenedAt: s.OpenedAt, LastActive: s.lastActive,
			BytesOut: s.bytesOut, ErrorCount: s.errorCount,
		})
	}
	return out
}

// ReapIdle closes every session across all channels whose last activity
// predates the configured IdleTimeout, returning how many were reaped.
func (m *Manager) ReapIdle(ctx context.Context) int {
	now := m.clock.Now()
	m.mu.RLock()
	shards := make([]*channelShard, 0, len(m.shards))
	for _, s := range m.shards {
		shards = append(shards, s)
	}
	m.mu.RUnlock()

	reaped := 0
	for _, shard := range shards {
		select {
		case <-ctx.Done():
			return reaped
		default:
		}
		shard.mu.Lock()
		for id, s := range shard.sessions {
			if now.Sub(s.lastActive) >= m.cfg.IdleTimeout {
				delete(shard.sessions, id)
				metrics.SessionOpen.Dec()
				reaped++
			}
		}
		shard.mu.Unlock()
	}
	return reaped
}

func formatID(n uint64) string {
	const hex = "0123456789abcdef"
	if n == 0 {
		return "0"
	}
	buf := make([]byte, 0, 16)
	for n > 0 {
		buf = append([]byte{hex[n%16]}, buf...)
		n /= 16
	}
	return string(buf)
}

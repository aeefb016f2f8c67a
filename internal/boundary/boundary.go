// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package boundary is the Boundary (C13): the external IPTV (M3U, XMLTV,
// per-channel .ts) and HDHomeRun (discover/lineup/tuner/SSDP) surfaces, all
// assembled on one chi router with one ingress middleware stack.
package boundary

import (
	"context"
	"time"

	"github.com/roto31/exstreamtv/internal/breaker"
	"github.com/roto31/exstreamtv/internal/channel"
	"github.com/roto31/exstreamtv/internal/channels"
	"github.com/roto31/exstreamtv/internal/epg"
	"github.com/roto31/exstreamtv/internal/playout"
	"github.com/roto31/exstreamtv/internal/pool"
	"github.com/roto31/exstreamtv/internal/session"
	"github.com/roto31/exstreamtv/internal/throttle"
)

// ChannelEntry is everything the Boundary needs about one live channel: its
// admin metadata, its supervised runtime, and the timeline driving its EPG.
type ChannelEntry struct {
	Entity   channels.Entity
	Runtime  *channel.Runtime
	Timeline *playout.Timeline
	Schedule playout.Schedule
}

// Registry is the Boundary's read path over the set of channels currently
// running. It is assembled once at startup by whatever wires ChannelRuntimes
// together (cmd/exstreamtv); the Boundary never starts or stops a channel.
type Registry interface {
	Channels() []ChannelEntry
	Channel(id string) (ChannelEntry, bool)
}

// Config configures the Boundary's protocol identity and ingress tunables.
type Config struct {
	BaseURL      string
	DeviceID     string
	FriendlyName string
	ModelName    string
	FirmwareName string
	TunerCount   int
	SSDPPort     int
	SSDPEnabled  bool

	XMLTVPath    string
	EPGHorizon   time.Duration
	TitleLookup  epg.TitleLookup

	RateLimitRPS int
}

func (c Config) withDefaults() Config {
	if c.FriendlyName == "" {
		c.FriendlyName = "exstreamtv"
	}
	if c.ModelName == "" {
		c.ModelName = "HDHR-exstreamtv"
	}
	if c.FirmwareName == "" {
		c.FirmwareName = "exstreamtv-1.0.0"
	}
	if c.TunerCount == 0 {
		c.TunerCount = 4
	}
	if c.SSDPPort == 0 {
		c.SSDPPort = 1900
	}
	if c.EPGHorizon == 0 {
		c.EPGHorizon = 24 * time.Hour
	}
	return c
}

// Server holds every dependency the Boundary's handlers read from: a
// Registry of running channels, the admin-mutable channel store, process
// pool and breaker state for health reporting, and the per-connection
// session/throttle machinery each .ts stream goes through.
type Server struct {
	cfg Config

	registry Registry
	channels *channels.Manager
	pool     *pool.Pool
	breakers *breaker.Manager
	sessions *session.Manager

	newThrottler func() *throttle.Throttler
}

// NewServer constructs a Boundary Server. newThrottler is called once per
// opened streaming session so each client gets its own pacing state;
// pass a constructor closing over throttle.DefaultConfig() and a clock.
func NewServer(cfg Config, registry Registry, cm *channels.Manager, p *pool.Pool, br *breaker.Manager, sm *session.Manager, newThrottler func() *throttle.Throttler) *Server {
	return &Server{
		cfg:          cfg.withDefaults(),
		registry:     registry,
		channels:     cm,
		pool:         p,
		breakers:     br,
		sessions:     sm,
		newThrottler: newThrottler,
	}
}

// baseURLFor resolves the advertised base URL: the configured value if set,
// otherwise reconstructed from the incoming request (works behind a
// reverse proxy only if BaseURL is set explicitly).
func (s *Server) baseURLFor(scheme, host string) string {
	if s.cfg.BaseURL != "" {
		return s.cfg.BaseURL
	}
	return scheme + "://" + host
}

// Shutdown does nothing and returns nil: the SSDP loops started by
// StartSSDP stop when the context passed to StartSSDP is cancelled. It does
// not touch ChannelRuntimes; those are owned and stopped by whoever
// constructed the Registry.
func (s *Server) Shutdown(ctx context.Context) error {
	return nil
}

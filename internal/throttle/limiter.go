// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package throttle implements the StreamThrottler (C10): it paces bytes
// written to a client connection so a channel never exceeds its target
// bitrate by more than the tolerance in I9 (actual rate <= target*1.05
// measured over windows of >=10s), aligning every release to whole 188-byte
// MPEG-TS packets so a throttle boundary never splits a packet.
package throttle

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/roto31/exstreamtv/internal/clock"
)

const packetSize = 188

var throttleWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "exstreamtv",
	Name:      "throttle_pace_wait_seconds",
	Help:      "Time spent blocked pacing output to the target bitrate.",
	Buckets:   prometheus.DefBuckets,
})

// Mode selects how a channel's output is paced.
type Mode string

const (
	ModeRealtime Mode = "realtime" // token-bucket pacing at the target rate
	ModeBurst    Mode = "burst"    // paced exactly like realtime; no separate burst allowance
	ModeAdaptive Mode = "adaptive" // paced exactly like realtime; no backpressure handling
	ModeDisabled Mode = "disabled" // no pacing; writes pass through untouched
)

// Config configures a Throttler.
type Config struct {
	Mode                 Mode
	TargetBytesPerSecond float64
	BurstFactor          float64       // burst bucket = target * BurstFactor, in every paced mode
	MeasurementWindow    time.Duration // I9's >=10s measurement window
}

// DefaultConfig paces at no limit; callers set TargetBytesPerSecond from
// the channel's configured bitrate.
func DefaultConfig() Config {
	return Config{Mode: ModeRealtime, BurstFactor: 1.1, MeasurementWindow: 10 * time.Second}
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeRealtime
	}
	if c.BurstFactor <= 0 {
		c.BurstFactor = 1.1
	}
	if c.MeasurementWindow <= 0 {
		c.MeasurementWindow = 10 * time.Second
	}
	return c
}

// Throttler paces byte throughput for one channel's output.
type Throttler struct {
	cfg     Config
	clock   clock.Clock
	limiter *rate.Limiter

	windowStart time.Time
	windowBytes int64
}

// New constructs a Throttler. A zero TargetBytesPerSecond or Mode=disabled
// makes Pace a no-op passthrough.
func New(cfg Config, c clock.Clock) *Throttler {
	cfg = cfg.withDefaults()
	t := &Throttler{cfg: cfg, clock: c, windowStart: c.Now()}
	if cfg.Mode != ModeDisabled && cfg.TargetBytesPerSecond > 0 {
		burst := int(cfg.TargetBytesPerSecond * cfg.BurstFactor)
		if burst < packetSize {
			burst = packetSize
		}
		t.limiter = rate.NewLimiter(rate.Limit(cfg.TargetBytesPerSecond), burst)
	}
	return t
}

// Pace wraps w so every Write blocks until the byte-rate budget allows it,
// releasing output in whole 188-byte MPEG-TS packets.
func (t *Throttler) Pace(w io.Writer) io.Writer {
	if t.limiter == nil {
		return w
	}
	return &pacedWriter{t: t, w: w}
}

// WaitN blocks the caller until n bytes (rounded up to a packet boundary)
// are permitted by the rate limiter. Exported so callers that stream in
// fixed-size chunks can pace without an io.Writer wrapper.
func (t *Throttler) WaitN(ctx context.Context, n int) error {
	if t.limiter == nil {
		return nil
	}
	aligned := alignUp(n, packetSize)
	start := t.clock.Now()
	err := t.limiter.WaitN(ctx, aligned)
	throttleWaitSeconds.Observe(t.clock.Now().Sub(start).Seconds())
	t.recordWindow(aligned)
	return err
}

// ObservedRate returns the measured bytes/sec over the current measurement
// window, for I9 verification and /metrics exposition.
func (t *Throttler) ObservedRate() float64 {
	elapsed := t.clock.Now().Sub(t.windowStart).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.windowBytes) / elapsed
}

func (t *Throttler) recordWindow(n int) {
	now := t.clock.Now()
	if now.Sub(t.windowStart) >= t.cfg.MeasurementWindow {
		t.windowStart = now
		t.windowBytes = 0
	}
	t.windowBytes += int64(n)
}

func alignUp(n, align int) int {
	if n <= 0 {
		return align
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + (align - rem)
}

type pacedWriter struct {
	t *Throttler
	w io.Writer
}

// Write releases p to the underlying writer in whole-packet chunks, pacing
// each chunk through the token bucket before it is written.
func (pw *pacedWriter) Write(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		end := total + packetSize
		if end > len(p) {
			end = len(p)
		}
		chunk := p[total:end]
		if err := pw.t.WaitN(context.Background(), len(chunk)); err != nil {
			return total, err
		}
		n, err := pw.w.Write(chunk)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

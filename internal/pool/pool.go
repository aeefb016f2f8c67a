// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package pool implements the ProcessPool (C2): the sole spawner and reaper
// of external transcoder processes. No other package may call os/exec for a
// transcoder; that invariant is enforced by code review / grep, not by the
// type system.
package pool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/log"
	"github.com/roto31/exstreamtv/internal/metrics"
	"github.com/roto31/exstreamtv/internal/procgroup"
)

// AcquireReason classifies why acquire failed.
type AcquireReason string

const (
	ReasonNone        AcquireReason = ""
	ReasonMemoryGuard AcquireReason = "MemoryGuard"
	ReasonFdGuard     AcquireReason = "FdGuard"
	ReasonPoolFull    AcquireReason = "PoolFull"
	ReasonRateLimited AcquireReason = "RateLimited"
	ReasonSpawnFailed AcquireReason = "SpawnFailed"
)

// AcquireError reports a classified acquire failure.
type AcquireError struct {
	Reason AcquireReason
	Err    error
}

func (e *AcquireError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("pool: acquire denied (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("pool: acquire denied (%s)", e.Reason)
}

func (e *AcquireError) Unwrap() error { return e.Err }

// Config holds the gatekeeper's tunables; every field has a documented
// default when zero.
type Config struct {
	CapacityMax           int
	SpawnsPerSecond       rate.Limit
	MemoryGuardThreshold  float64
	FdGuardReserve        int
	ReapInterval          time.Duration
	LongRunMax            time.Duration
	LongRunGrace          time.Duration
	PoolPressureThreshold float64
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		CapacityMax:           150,
		SpawnsPerSecond:       5,
		MemoryGuardThreshold:  0.85,
		FdGuardReserve:        100,
		ReapInterval:          30 * time.Second,
		LongRunMax:            24 * time.Hour,
		LongRunGrace:          10 * time.Second,
		PoolPressureThreshold: 0.80,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CapacityMax <= 0 {
		c.CapacityMax = d.CapacityMax
	}
	if c.SpawnsPerSecond <= 0 {
		c.SpawnsPerSecond = d.SpawnsPerSecond
	}
	if c.MemoryGuardThreshold <= 0 {
		c.MemoryGuardThreshold = d.MemoryGuardThreshold
	}
	if c.FdGuardReserve <= 0 {
		c.FdGuardReserve = d.FdGuardReserve
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = d.ReapInterval
	}
	if c.LongRunMax <= 0 {
		c.LongRunMax = d.LongRunMax
	}
	if c.LongRunGrace <= 0 {
		c.LongRunGrace = d.LongRunGrace
	}
	if c.PoolPressureThreshold <= 0 {
		c.PoolPressureThreshold = d.PoolPressureThreshold
	}
	return c
}

// Lease is one live transcoder's PoolLease.
type Lease struct {
	ID         string
	ChannelID  string
	PID        int
	AcquiredAt time.Time

	cmd      *exec.Cmd
	stdout   io.ReadCloser
	stderr   io.ReadCloser
	waitCh   chan error
	released bool

	// exitDone is closed exactly once, by the goroutine that calls
	// cmd.Wait(), after exitErr is set. Unlike waitCh (a single buffered
	// value reserved for procgroup.Terminate's own escalation logic
	// inside Release), a closed channel can be observed by any number of
	// readers without consuming anything, so ChannelRuntime can watch
	// process exit independently of Release/Terminate.
	exitDone chan struct{}
	exitErr  error

	// LongRunRevoked is closed by the reaper when the lease exceeds
	// LongRunMax; ChannelRuntime selects on it to schedule a graceful swap.
	LongRunRevoked chan struct{}

	mu sync.Mutex
}

// Stdout returns the transcoder's stdout reader carrying MPEG-TS bytes.
func (l *Lease) Stdout() io.Reader { return l.stdout }

// Stderr returns the transcoder's stderr reader, for diagnostic capture.
func (l *Lease) Stderr() io.Reader { return l.stderr }

// Done returns a channel closed once the underlying process has exited.
// Safe to select on from any number of goroutines; it never competes with
// Release's own wait on waitCh.
func (l *Lease) Done() <-chan struct{} { return l.exitDone }

// ExitErr returns the process's exit error (nil on a clean exit). Only
// meaningful after Done() has been observed closed.
func (l *Lease) ExitErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exitErr
}

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Live        int
	Capacity    int
	Utilization float64
	Containment bool
}

type memSampler func() (usedRatio float64, err error)
type fdSampler func() (available int, err error)

// Pool is the process pool singleton; construct one per process.
type Pool struct {
	cfg   Config
	clock clock.Clock

	limiter *rate.Limiter

	mu      sync.Mutex
	leases  map[string]*Lease
	counter uint64

	memSample memSampler
	fdSample  fdSampler

	reapCancel context.CancelFunc
	reapDone   chan struct{}
}

// New constructs a ProcessPool. memSample/fdSample may be nil to use the
// real /proc-backed samplers; tests inject fakes for determinism.
func New(cfg Config, c clock.Clock, memSample memSampler, fdSample fdSampler) *Pool {
	cfg = cfg.withDefaults()
	if c == nil {
		c = clock.System()
	}
	if memSample == nil {
		memSample = sampleMemoryUsedRatio
	}
	if fdSample == nil {
		fdSample = sampleAvailableFDs
	}
	burst := int(cfg.SpawnsPerSecond)
	if burst < 1 {
		burst = 1
	}
	p := &Pool{
		cfg:       cfg,
		clock:     c,
		limiter:   rate.NewLimiter(cfg.SpawnsPerSecond, burst),
		leases:    make(map[string]*Lease),
		memSample: memSample,
		fdSample:  fdSample,
	}
	metrics.PoolLive.Set(0)
	return p
}

// Run starts the background zombie reaper; it stops when ctx is canceled.
func (p *Pool) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.reapCancel = cancel
	p.reapDone = make(chan struct{})
	go func() {
		defer close(p.reapDone)
		ticker := time.NewTicker(p.cfg.ReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.reap()
			}
		}
	}()
}

// Shutdown stops the reaper and waits for it to exit.
func (p *Pool) Shutdown() {
	if p.reapCancel != nil {
		p.reapCancel()
		<-p.reapDone
	}
}

// Acquire spawns a transcoder process per the guard ordering in spec §4.2:
// memory guard, FD guard, capacity, spawn-rate token. Never blocks on I/O.
func (p *Pool) Acquire(channelID string, argv []string, env []string) (*Lease, error) {
	if usedRatio, err := p.memSample(); err == nil && usedRatio >= p.cfg.MemoryGuardThreshold {
		metrics.RecordSpawnDenied("memory")
		return nil, &AcquireError{Reason: ReasonMemoryGuard}
	}
	if avail, err := p.fdSample(); err == nil && avail < p.cfg.FdGuardReserve {
		metrics.RecordSpawnDenied("fd")
		return nil, &AcquireError{Reason: ReasonFdGuard}
	}

	p.mu.Lock()
	if len(p.leases) >= p.cfg.CapacityMax {
		p.mu.Unlock()
		metrics.RecordSpawnDenied("capacity")
		return nil, &AcquireError{Reason: ReasonPoolFull}
	}
	p.mu.Unlock()

	if !p.limiter.Allow() {
		metrics.RecordSpawnDenied("rate")
		return nil, &AcquireError{Reason: ReasonRateLimited}
	}

	lease, err := p.spawn(channelID, argv, env)
	if err != nil {
		metrics.RecordSpawnDenied("spawn_failed")
		return nil, &AcquireError{Reason: ReasonSpawnFailed, Err: err}
	}

	p.mu.Lock()
	p.leases[lease.ID] = lease
	live := len(p.leases)
	p.mu.Unlock()
	p.reportOccupancy(live)

	return lease, nil
}

func (p *Pool) spawn(channelID string, argv []string, env []string) (*Lease, error) {
	if len(argv) == 0 {
		return nil, errors.New("pool: empty argv")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	if len(env) > 0 {
		cmd.Env = env
	}
	procgroup.Set(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.counter++
	id := fmt.Sprintf("%s-%d", channelID, p.counter)
	p.mu.Unlock()

	waitCh := make(chan error, 1)
	exitDone := make(chan struct{})

	lease := &Lease{
		ID:             id,
		ChannelID:      channelID,
		PID:            cmd.Process.Pid,
		AcquiredAt:     p.clock.Now(),
		cmd:            cmd,
		stdout:         stdout,
		stderr:         stderr,
		waitCh:         waitCh,
		exitDone:       exitDone,
		LongRunRevoked: make(chan struct{}),
	}

	go func() {
		err := cmd.Wait()
		lease.mu.Lock()
		lease.exitErr = err
		lease.mu.Unlock()
		waitCh <- err
		close(exitDone)
	}()

	return lease, nil
}

// Release is idempotent (R1): calling it twice on the same lease has no
// further effect after the first call completes the kill escalation, and
// the repeated call returns the same process exit error.
func (p *Pool) Release(l *Lease) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	if l.released {
		err := l.exitErr
		l.mu.Unlock()
		return err
	}
	l.released = true
	l.mu.Unlock()

	err := procgroup.Terminate(l.cmd, l.waitCh, 5*time.Second)

	p.mu.Lock()
	delete(p.leases, l.ID)
	live := len(p.leases)
	p.mu.Unlock()
	p.reportOccupancy(live)

	return err
}

func (p *Pool) reportOccupancy(live int) {
	metrics.PoolLive.Set(float64(live))
	util := float64(live) / float64(p.cfg.CapacityMax)
	metrics.PoolUtilization.Set(util)
}

// Stats returns a point-in-time snapshot.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	live := len(p.leases)
	p.mu.Unlock()
	util := float64(live) / float64(p.cfg.CapacityMax)
	return Stats{
		Live:        live,
		Capacity:    p.cfg.CapacityMax,
		Utilization: util,
		Containment: util > p.cfg.PoolPressureThreshold,
	}
}

// reap implements the zombie reaper and the long-run guard: leases whose
// process already exited but weren't released are force-released; leases
// older than LongRunMax are flagged via LongRunRevoked and, after the grace
// period, force-killed if the owner hasn't released them.
func (p *Pool) reap() {
	now := p.clock.Now()

	p.mu.Lock()
	var zombies, longRun []*Lease
	for _, l := range p.leases {
		select {
		case err := <-l.waitCh:
			l.waitCh <- err // put it back for Release to drain
			zombies = append(zombies, l)
		default:
		}
		if now.Sub(l.AcquiredAt) > p.cfg.LongRunMax {
			longRun = append(longRun, l)
		}
	}
	p.mu.Unlock()

	for _, l := range zombies {
		log.L().Warn().Str("lease", l.ID).Str("channel", l.ChannelID).Msg("reaping zombie lease: process exited without release")
		_ = p.Release(l)
	}

	for _, l := range longRun {
		l.mu.Lock()
		alreadyRevoked := false
		select {
		case <-l.LongRunRevoked:
			alreadyRevoked = true
		default:
			close(l.LongRunRevoked)
		}
		l.mu.Unlock()
		if !alreadyRevoked {
			log.L().Warn().Str("lease", l.ID).Str("channel", l.ChannelID).Msg("long-run guard: revoking lease")
			go p.forceAfterGrace(l)
		}
	}
}

func (p *Pool) forceAfterGrace(l *Lease) {
	timer := p.clock.NewTimer(p.cfg.LongRunGrace)
	<-timer.C()
	l.mu.Lock()
	released := l.released
	l.mu.Unlock()
	if !released {
		log.L().Warn().Str("lease", l.ID).Msg("long-run grace elapsed: force-killing lease")
		_ = p.Release(l)
	}
}

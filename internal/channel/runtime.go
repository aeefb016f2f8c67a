// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package channel implements the ChannelRuntime (C12): the per-channel
// state machine that owns a PlayoutAnchor, holds the active ProcessPool
// lease for the channel's current source, and fans stream bytes out to
// every subscribed Session. Supervision follows an errgroup-based run
// idiom: one goroutine per concern, all cancelled together through a
// shared context.
package channel

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/governor"
	"github.com/roto31/exstreamtv/internal/log"
	"github.com/roto31/exstreamtv/internal/playout"
	"github.com/roto31/exstreamtv/internal/pool"
)

// State is the channel's supervision state.
type State string

const (
	StateStopped    State = "stopped"
	StateStarting   State = "starting"
	StateRunning    State = "running"
	StateRestarting State = "restarting"
	StateFailed     State = "failed"
)

// LongRunRevokeGrace is how long superviseLease waits after a long-run
// revoke before ending the lease as a natural item end (Open Question
// decision, see DESIGN.md). The ProcessPool force-releases a revoked lease
// on its own, shorter LongRunGrace timer.
const LongRunRevokeGrace = 30 * time.Second

// DefaultHealthStale is how long a running source may produce zero output
// bytes before it's promoted to a SourceFailed{Transient} (§4.12).
const DefaultHealthStale = 180 * time.Second

// anchorPersistInterval bounds how long a running item can go without its
// elapsed position being persisted (§3 invariant (c): "at least every N
// seconds").
const anchorPersistInterval = 10 * time.Second

// ErrAlreadyRunning is returned by Start when the channel is not Stopped.
var ErrAlreadyRunning = errors.New("channel: already running")

// SourceStarter produces the next argv to spawn for this channel, given the
// current playout position. ChannelRuntime doesn't know how to pick or
// build a source; it only knows how to run one and react to its exit.
type SourceStarter func(ctx context.Context, resumeOffset time.Duration) (argv []string, env []string, err error)

// Subscriber receives the channel's live MPEG-TS bytes. Write failures
// unsubscribe the caller.
type Subscriber interface {
	io.Writer
}

// Runtime is one channel's supervised playout loop.
type Runtime struct {
	ChannelID string

	clock       clock.Clock
	pool        *pool.Pool
	governor    *governor.Governor
	timeline    *playout.Timeline
	starter     SourceStarter
	healthStale time.Duration

	mu          sync.Mutex
	state       State
	lease       *pool.Lease
	subscribers map[int]*subscriberQueue
	nextSubID   int

	stopCh chan struct{}
}

// New constructs a channel Runtime. starter is consulted every time the
// runtime needs a new source (first start, or after a restart decision).
func New(channelID string, c clock.Clock, p *pool.Pool, g *governor.Governor, tl *playout.Timeline, starter SourceStarter) *Runtime {
	return &Runtime{
		ChannelID:   channelID,
		clock:       c,
		pool:        p,
		governor:    g,
		timeline:    tl,
		starter:     starter,
		healthStale: DefaultHealthStale,
		state:       StateStopped,
		subscribers: make(map[int]*subscriberQueue),
	}
}

// SetHealthStale overrides the default stale-output watchdog window.
func (r *Runtime) SetHealthStale(d time.Duration) {
	r.mu.Lock()
	r.healthStale = d
	r.mu.Unlock()
}

// State returns the current supervision state.
func (r *Runtime) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers w to receive this channel's live bytes. w's Write is
// always called from a dedicated per-subscriber goroutine, never from the
// hub's own output-pump goroutine, so one slow or blocked subscriber can
// never stall delivery to the others. The returned function unsubscribes w.
func (r *Runtime) Subscribe(w Subscriber) func() {
	q := newSubscriberQueue(w)

	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = q
	r.mu.Unlock()

	go q.run(func() { r.dropSubscriber(id) })

	return func() { r.dropSubscriber(id) }
}

func (r *Runtime) dropSubscriber(id int) {
	r.mu.Lock()
	q, ok := r.subscribers[id]
	if ok {
		delete(r.subscribers, id)
	}
	r.mu.Unlock()
	if ok {
		q.close()
	}
}

func (r *Runtime) subscriberCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subscribers)
}

// fanOut never blocks: it only enqueues onto each subscriber's bounded
// queue, dropping (and unsubscribing) whichever subscriber is too far
// behind to keep up, per §4.12/§5.
func (r *Runtime) fanOut(p []byte) {
	r.mu.Lock()
	queues := make([]*subscriberQueue, 0, len(r.subscribers))
	ids := make([]int, 0, len(r.subscribers))
	for id, q := range r.subscribers {
		queues = append(queues, q)
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for i, q := range queues {
		if !q.enqueue(p) {
			r.dropSubscriber(ids[i])
		}
	}
}

func (r *Runtime) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Start runs the channel's supervised loop until ctx is cancelled or
// RequestStop is called. It blocks; callers typically run it in its own
// goroutine or errgroup member.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state != StateStopped {
		r.mu.Unlock()
		return ErrAlreadyRunning
	}
	r.state = StateStarting
	r.stopCh = make(chan struct{})
	r.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.superviseLoop(gctx) })

	err := g.Wait()
	r.setState(StateStopped)
	return err
}

// RequestStop asks the supervised loop to exit cleanly, releasing Start.
func (r *Runtime) RequestStop() {
	r.mu.Lock()
	ch := r.stopCh
	r.mu.Unlock()
	if ch != nil {
		select {
		case <-ch:
		default:
			close(ch)
		}
	}
}

// exitKind classifies how one runOnce attempt ended.
type exitKind int

const (
	// exitNaturalEOF is a planned transition (source ended on its own):
	// the timeline advances to the next item and playback restarts
	// immediately, without consulting the governor.
	exitNaturalEOF exitKind = iota
	// exitFailure is an unplanned exit; the governor decides whether and
	// when to retry.
	exitFailure
	// exitStopped means ctx or stopCh fired; superviseLoop must return.
	exitStopped
)

type runResult struct {
	kind    exitKind
	failure *SourceFailure
}

// superviseLoop is ChannelRuntime's state machine (§4.12). Every source
// exit is classified by runOnce: a natural EOF is a planned item-to-item
// transition and bypasses RestartGovernor entirely (it isn't a restart),
// while a genuine failure is the only case throttled/breaker-gated through
// the governor.
func (r *Runtime) superviseLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.releaseLease()
			return nil
		case <-r.stopCh:
			r.releaseLease()
			return nil
		default:
		}

		result := r.runOnce(ctx)

		switch result.kind {
		case exitStopped:
			return nil

		case exitNaturalEOF:
			r.advancePastCurrentItem()
			r.setState(StateRestarting)
			continue

		case exitFailure:
			log.L().Warn().Str("channel", r.ChannelID).Err(result.failure).Msg("channel source failed")

			if result.failure != nil && result.failure.Cause == PermanentForItem {
				// This item can never play; skip it like a natural EOF
				// rather than burning a governor slot retrying it.
				r.advancePastCurrentItem()
				r.setState(StateRestarting)
				continue
			}

			decision := r.governor.RequestRestart(r.ChannelID, "source_failed")
			switch decision {
			case governor.Allowed:
				r.setState(StateRestarting)
				continue
			default:
				r.setState(StateFailed)
				select {
				case <-ctx.Done():
					return nil
				case <-r.stopCh:
					return nil
				case <-r.clock.After(5 * time.Second):
					continue
				}
			}
		}
	}
}

// advancePastCurrentItem records the final elapsed position of the item
// that just ended and moves the timeline to the next one (§3 invariant (c):
// the anchor is persisted on every item transition).
func (r *Runtime) advancePastCurrentItem() {
	now := r.clock.Now()
	r.timeline.RecordElapsed(r.timeline.ResumeOffset(now))
	r.timeline.Advance(now)
}

// runOnce acquires one process lease, runs it to completion (or until ctx
// is cancelled), and classifies the result.
func (r *Runtime) runOnce(ctx context.Context) runResult {
	resume := r.timeline.ResumeOffset(r.clock.Now())
	argv, env, err := r.starter(ctx, resume)
	if err != nil {
		return runResult{kind: exitFailure, failure: classifyStartError(err)}
	}

	lease, err := r.pool.Acquire(r.ChannelID, argv, env)
	if err != nil {
		return runResult{kind: exitFailure, failure: &SourceFailure{Cause: Transient, Err: err}}
	}
	r.mu.Lock()
	r.lease = lease
	r.mu.Unlock()
	r.setState(StateRunning)

	startedAt := r.clock.Now()
	activity := make(chan struct{}, 1)
	go r.pumpOutput(lease, activity)

	result := r.superviseLease(ctx, lease, startedAt, activity)
	r.releaseLease()
	return result
}

// superviseLease waits for the lease's outcome: a long-run-guard swap, the
// process actually exiting, a stale-output timeout, or cancellation. It
// also persists the playout anchor periodically while the lease runs.
func (r *Runtime) superviseLease(ctx context.Context, lease *pool.Lease, startedAt time.Time, activity <-chan struct{}) runResult {
	r.mu.Lock()
	healthStale := r.healthStale
	r.mu.Unlock()

	healthTimer := r.clock.NewTimer(healthStale)
	defer healthTimer.Stop()
	persistTimer := r.clock.NewTimer(anchorPersistInterval)
	defer persistTimer.Stop()

	for {
		select {
		case <-lease.LongRunRevoked:
			<-r.clock.After(LongRunRevokeGrace)
			return runResult{kind: exitNaturalEOF}

		case <-lease.Done():
			exitErr := lease.ExitErr()
			upFor := r.clock.Now().Sub(startedAt)
			r.governor.RecordOutcome(r.ChannelID, exitErr != nil, upFor)
			if exitErr != nil {
				return runResult{kind: exitFailure, failure: &SourceFailure{Cause: Transient, Err: exitErr}}
			}
			return runResult{kind: exitNaturalEOF}

		case <-activity:
			healthTimer.Reset(healthStale)

		case <-healthTimer.C():
			return runResult{kind: exitFailure, failure: &SourceFailure{Cause: Transient, Err: errHealthStale}}

		case <-persistTimer.C():
			r.timeline.RecordElapsed(r.timeline.ResumeOffset(r.clock.Now()))
			persistTimer.Reset(anchorPersistInterval)

		case <-ctx.Done():
			return runResult{kind: exitStopped}
		}
	}
}

// pumpOutput is the sole reader of lease.Stdout(): it owns that
// io.ReadCloser for the lease's whole lifetime and fans every chunk out to
// subscribers, signalling activity so superviseLease's stale-output
// watchdog knows the source is still alive.
func (r *Runtime) pumpOutput(lease *pool.Lease, activity chan<- struct{}) {
	buf := make([]byte, 64*1024)
	for {
		n, err := lease.Stdout().Read(buf)
		if n > 0 {
			r.fanOut(buf[:n])
			select {
			case activity <- struct{}{}:
			default:
			}
		}
		if err != nil {
			return
		}
	}
}

func (r *Runtime) releaseLease() {
	r.mu.Lock()
	lease := r.lease
	r.lease = nil
	r.mu.Unlock()
	if lease != nil {
		_ = r.pool.Release(lease)
	}
}

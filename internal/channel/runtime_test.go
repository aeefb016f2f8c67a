package channel

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roto31/exstreamtv/internal/breaker"
	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/governor"
	"github.com/roto31/exstreamtv/internal/playout"
	"github.com/roto31/exstreamtv/internal/pool"
	"github.com/roto31/exstreamtv/internal/resolver"
)

func newTestRuntime(t *testing.T, fc clock.Clock) (*Runtime, *pool.Pool) {
	p := pool.New(pool.DefaultConfig(), fc, func() (float64, error) { return 0.1, nil }, func() (int, error) { return 1000, nil })
	br := breaker.NewManager(breaker.DefaultConfig(), fc)
	gov := governor.New(governor.DefaultConfig(), fc, br)
	store, err := playout.NewStore("")
	require.NoError(t, err)
	tl := playout.NewTimeline("ch1", playout.Schedule{Items: []playout.ScheduleItem{{OutPoint: 10 * time.Second}}}, store, fc)

	starter := func(ctx context.Context, resume time.Duration) ([]string, []string, error) {
		return []string{"echo", "hi"}, nil, nil
	}
	return New("ch1", fc, p, gov, tl, starter), p
}

func newTestRuntimeWithStarter(t *testing.T, fc clock.Clock, starter SourceStarter) *Runtime {
	p := pool.New(pool.DefaultConfig(), fc, func() (float64, error) { return 0.1, nil }, func() (int, error) { return 1000, nil })
	br := breaker.NewManager(breaker.DefaultConfig(), fc)
	gov := governor.New(governor.DefaultConfig(), fc, br)
	store, err := playout.NewStore("")
	require.NoError(t, err)
	tl := playout.NewTimeline("ch1", playout.Schedule{Items: []playout.ScheduleItem{{OutPoint: 10 * time.Second}}}, store, fc)
	return New("ch1", fc, p, gov, tl, starter)
}

func TestSubscribe_AddsAndRemovesSubscriber(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	rt, _ := newTestRuntime(t, fc)

	var buf bytes.Buffer
	unsub := rt.Subscribe(&buf)
	assert.Equal(t, 1, rt.subscriberCount())
	unsub()
	assert.Equal(t, 0, rt.subscriberCount())
}

// syncBuffer is a thread-safe bytes.Buffer, needed because fanOut delivers
// to subscribers asynchronously through their own drain goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestFanOut_WritesToAllSubscribers(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	rt, _ := newTestRuntime(t, fc)

	var buf1, buf2 syncBuffer
	rt.Subscribe(&buf1)
	rt.Subscribe(&buf2)

	rt.fanOut([]byte("hello"))

	assert.Eventually(t, func() bool { return buf1.String() == "hello" }, time.Second, time.Millisecond)
	assert.Eventually(t, func() bool { return buf2.String() == "hello" }, time.Second, time.Millisecond)
}

func TestFanOut_DropsFailingSubscriber(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	rt, _ := newTestRuntime(t, fc)

	rt.Subscribe(&failingWriter{})
	assert.Equal(t, 1, rt.subscriberCount())
	rt.fanOut([]byte("x"))
	assert.Eventually(t, func() bool { return rt.subscriberCount() == 0 }, time.Second, time.Millisecond,
		"a subscriber whose Write fails must be dropped")
}

// blockingWriter never returns from Write until unblock is closed, standing
// in for a client whose connection has stalled.
type blockingWriter struct {
	unblock chan struct{}
}

func (b *blockingWriter) Write(p []byte) (int, error) {
	<-b.unblock
	return len(p), nil
}

func TestFanOut_DropsSlowSubscriberAfterQueueFillsWithoutStallingOthers(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	rt, _ := newTestRuntime(t, fc)

	slow := &blockingWriter{unblock: make(chan struct{})}
	defer close(slow.unblock)
	rt.Subscribe(slow)

	var fast syncBuffer
	rt.Subscribe(&fast)

	// The slow subscriber's single drain goroutine is parked on its first
	// blocking Write; every subsequent fanOut only fills its bounded queue
	// without ever blocking the caller.
	for i := 0; i < subscriberQueueCapacity+10; i++ {
		rt.fanOut([]byte("x"))
	}

	assert.Eventually(t, func() bool { return rt.subscriberCount() == 1 }, time.Second, time.Millisecond,
		"a subscriber whose queue overflows must be dropped")
	assert.Eventually(t, func() bool { return len(fast.String()) == subscriberQueueCapacity+10 }, time.Second, time.Millisecond,
		"fanOut must keep delivering to other subscribers while one is overflowing")
}

func TestStart_RejectsDoubleStart(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	rt, _ := newTestRuntime(t, fc)
	rt.mu.Lock()
	rt.state = StateRunning
	rt.mu.Unlock()

	err := rt.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestRequestStop_ReleasesStart(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	rt, p := newTestRuntime(t, fc)
	p.Run(context.Background())
	defer p.Shutdown()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = rt.Start(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	rt.RequestStop()
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestStop did not release Start")
	}
}

// TestSuperviseLoop_NaturalEOFBypassesGovernorCooldown exercises a real,
// fast-exiting process ("true") so superviseLease's lease.Done() path fires
// for real. With the fake clock frozen at t=0, a governor.ChannelCooldown
// of 30s would deny every restart after the first if natural EOF were
// routed through RequestRestart; the timeline must instead keep advancing.
func TestSuperviseLoop_NaturalEOFBypassesGovernorCooldown(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p := pool.New(pool.DefaultConfig(), fc, func() (float64, error) { return 0.1, nil }, func() (int, error) { return 1000, nil })
	br := breaker.NewManager(breaker.DefaultConfig(), fc)
	gov := governor.New(governor.DefaultConfig(), fc, br)
	store, err := playout.NewStore("")
	require.NoError(t, err)
	tl := playout.NewTimeline("ch1", playout.Schedule{Items: []playout.ScheduleItem{{OutPoint: 10 * time.Second}}}, store, fc)

	starter := func(ctx context.Context, resume time.Duration) ([]string, []string, error) {
		return []string{"true"}, nil, nil
	}
	rt := New("ch1", fc, p, gov, tl, starter)
	p.Run(context.Background())
	defer p.Shutdown()

	done := make(chan error, 1)
	go func() { done <- rt.Start(context.Background()) }()

	assert.Eventually(t, func() bool {
		return tl.Anchor().Counter >= 3
	}, 3*time.Second, 5*time.Millisecond,
		"natural EOF must keep advancing the timeline, not stall behind a 30s channel cooldown")

	assert.NotEqual(t, StateFailed, rt.State(),
		"a planned item-to-item transition must never trip the restart governor's cooldown")

	rt.RequestStop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestStop did not release Start")
	}
}

// TestSuperviseLoop_PermanentForItemAdvancesWithoutGovernor exercises the
// classification path (no process ever spawns: the starter itself fails)
// and asserts a PermanentForItem failure behaves like natural EOF: the
// timeline advances repeatedly without ever tripping the governor.
func TestSuperviseLoop_PermanentForItemAdvancesWithoutGovernor(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	starter := func(ctx context.Context, resume time.Duration) ([]string, []string, error) {
		return nil, nil, &resolver.ResolveError{Kind: resolver.NotFound, Err: errors.New("media missing")}
	}
	rt := newTestRuntimeWithStarter(t, fc, starter)

	done := make(chan error, 1)
	go func() { done <- rt.Start(context.Background()) }()

	var tl *playout.Timeline = rt.timeline
	assert.Eventually(t, func() bool {
		return tl.Anchor().Counter >= 3
	}, 3*time.Second, time.Millisecond,
		"PermanentForItem must advance past the unresolvable item instead of retrying it")

	assert.NotEqual(t, StateFailed, rt.State())

	rt.RequestStop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestStop did not release Start")
	}
}

// TestSuperviseLoop_TransientFailureGoesThroughGovernor is the regression
// guard for the opposite direction: a plain (unclassified) failure must
// still be governor-gated, so a healthy channel's cooldown rules still
// apply to genuine errors.
func TestSuperviseLoop_TransientFailureGoesThroughGovernor(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	starter := func(ctx context.Context, resume time.Duration) ([]string, []string, error) {
		return nil, nil, errors.New("boom")
	}
	rt := newTestRuntimeWithStarter(t, fc, starter)

	done := make(chan error, 1)
	go func() { done <- rt.Start(context.Background()) }()

	assert.Eventually(t, func() bool {
		return rt.State() == StateFailed
	}, 3*time.Second, time.Millisecond,
		"a transient failure must be governor-gated and hit the channel cooldown")

	rt.RequestStop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("RequestStop did not release Start")
	}
}

// TestRunOnce_HealthStalePromotesToSourceFailed drives runOnce directly
// against a real, silent long-running process; advancing the fake clock
// past the (shortened) stale window must fire the watchdog.
func TestRunOnce_HealthStalePromotesToSourceFailed(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p := pool.New(pool.DefaultConfig(), fc, func() (float64, error) { return 0.1, nil }, func() (int, error) { return 1000, nil })
	br := breaker.NewManager(breaker.DefaultConfig(), fc)
	gov := governor.New(governor.DefaultConfig(), fc, br)
	store, err := playout.NewStore("")
	require.NoError(t, err)
	tl := playout.NewTimeline("ch1", playout.Schedule{Items: []playout.ScheduleItem{{OutPoint: 10 * time.Second}}}, store, fc)

	starter := func(ctx context.Context, resume time.Duration) ([]string, []string, error) {
		return []string{"sleep", "5"}, nil, nil
	}
	rt := New("ch1", fc, p, gov, tl, starter)
	rt.SetHealthStale(50 * time.Millisecond)
	p.Run(context.Background())
	defer p.Shutdown()

	resCh := make(chan runResult, 1)
	go func() { resCh <- rt.runOnce(context.Background()) }()

	time.Sleep(100 * time.Millisecond)
	fc.Advance(50 * time.Millisecond)

	select {
	case res := <-resCh:
		require.Equal(t, exitFailure, res.kind)
		require.NotNil(t, res.failure)
		assert.Equal(t, Transient, res.failure.Cause)
		assert.ErrorIs(t, res.failure, errHealthStale)
	case <-time.After(3 * time.Second):
		t.Fatal("runOnce did not return after the health-stale watchdog fired")
	}
}

type failingWriter struct{}

func (f *failingWriter) Write(p []byte) (int, error) {
	return 0, errWriteFailed
}

var errWriteFailed = errors.New("write failed")

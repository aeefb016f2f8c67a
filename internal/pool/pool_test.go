package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/roto31/exstreamtv/internal/clock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func okSamplers() (memSampler, fdSampler) {
	return func() (float64, error) { return 0.1, nil }, func() (int, error) { return 10000, nil }
}

func TestAcquire_MemoryGuardDenies(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	mem := func() (float64, error) { return 0.99, nil }
	fd := func() (int, error) { return 10000, nil }
	p := New(DefaultConfig(), fc, mem, fd)

	_, err := p.Acquire("5", []string{"echo", "hi"}, nil)
	require.Error(t, err)
	var ae *AcquireError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ReasonMemoryGuard, ae.Reason)
}

func TestAcquire_FdGuardDenies(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	mem := func() (float64, error) { return 0.1, nil }
	fd := func() (int, error) { return 1, nil }
	p := New(DefaultConfig(), fc, mem, fd)

	_, err := p.Acquire("5", []string{"echo", "hi"}, nil)
	require.Error(t, err)
	var ae *AcquireError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ReasonFdGuard, ae.Reason)
}

func TestAcquire_CapacityDenies(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	mem, fd := okSamplers()
	cfg := DefaultConfig()
	cfg.CapacityMax = 1
	cfg.SpawnsPerSecond = 1000
	p := New(cfg, fc, mem, fd)

	l1, err := p.Acquire("5", []string{"sleep", "1"}, nil)
	require.NoError(t, err)
	defer p.Release(l1)

	_, err = p.Acquire("6", []string{"sleep", "1"}, nil)
	require.Error(t, err)
	var ae *AcquireError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ReasonPoolFull, ae.Reason)
}

func TestAcquire_RateLimited(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	mem, fd := okSamplers()
	cfg := DefaultConfig()
	cfg.SpawnsPerSecond = 1
	p := New(cfg, fc, mem, fd)

	l1, err := p.Acquire("5", []string{"sleep", "1"}, nil)
	require.NoError(t, err)
	defer p.Release(l1)

	_, err = p.Acquire("6", []string{"sleep", "1"}, nil)
	require.Error(t, err)
	var ae *AcquireError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ReasonRateLimited, ae.Reason)
}

func TestRelease_Idempotent(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	mem, fd := okSamplers()
	p := New(DefaultConfig(), fc, mem, fd)

	l, err := p.Acquire("5", []string{"sleep", "1"}, nil)
	require.NoError(t, err)

	err1 := p.Release(l)
	err2 := p.Release(l)
	assert.Equal(t, err1, err2)

	stats := p.Stats()
	assert.Equal(t, 0, stats.Live)
}

func TestStats_Utilization(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	mem, fd := okSamplers()
	cfg := DefaultConfig()
	cfg.CapacityMax = 2
	cfg.SpawnsPerSecond = 1000
	p := New(cfg, fc, mem, fd)

	l, err := p.Acquire("5", []string{"sleep", "1"}, nil)
	require.NoError(t, err)
	defer p.Release(l)

	stats := p.Stats()
	assert.Equal(t, 1, stats.Live)
	assert.InDelta(t, 0.5, stats.Utilization, 0.001)
	assert.False(t, stats.Containment)
}

func TestRun_StopsReaperOnContextCancel(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	mem, fd := okSamplers()
	p := New(DefaultConfig(), fc, mem, fd)

	ctx, cancel := context.WithCancel(context.Background())
	p.Run(ctx)
	cancel()
	p.Shutdown()
}

package breaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roto31/exstreamtv/internal/clock"
)

func TestBreaker_ClosedAllowsUntilThreshold(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New("5", Config{FailureThreshold: 3, FailureWindow: time.Minute, Cooldown: time.Second, ProbeUpSeconds: time.Second}, fc)

	require.True(t, b.Allow())
	b.RecordFailure()
	require.Equal(t, Closed, b.State())
	b.RecordFailure()
	require.Equal(t, Closed, b.State())
	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestBreaker_OpenDeniesUntilCooldown(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New("5", Config{FailureThreshold: 1, FailureWindow: time.Minute, Cooldown: 10 * time.Second, ProbeUpSeconds: time.Second}, fc)

	b.RecordFailure()
	require.Equal(t, Open, b.State())
	assert.False(t, b.Allow())

	fc.Advance(10 * time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, HalfOpen, b.State())
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New("5", Config{FailureThreshold: 1, FailureWindow: time.Minute, Cooldown: 10 * time.Second, ProbeUpSeconds: 30 * time.Second}, fc)

	b.RecordFailure()
	fc.Advance(10 * time.Second)
	require.True(t, b.Allow())
	require.Equal(t, HalfOpen, b.State())

	assert.False(t, b.Allow(), "a second concurrent probe must be rejected")
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New("5", Config{FailureThreshold: 1, FailureWindow: time.Minute, Cooldown: 10 * time.Second, ProbeUpSeconds: 30 * time.Second}, fc)

	b.RecordFailure()
	fc.Advance(10 * time.Second)
	require.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, Open, b.State())
}

func TestBreaker_ProbeSurvivalCloses(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New("5", Config{FailureThreshold: 1, FailureWindow: time.Minute, Cooldown: 10 * time.Second, ProbeUpSeconds: 30 * time.Second}, fc)

	b.RecordFailure()
	fc.Advance(10 * time.Second)
	require.True(t, b.Allow())

	b.RecordProbeSurvived(15 * time.Second)
	assert.Equal(t, HalfOpen, b.State(), "must not close before ProbeUpSeconds elapses")

	b.RecordProbeSurvived(30 * time.Second)
	assert.Equal(t, Closed, b.State())
}

func TestBreaker_FailuresOutsideWindowDoNotAccumulate(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	b := New("5", Config{FailureThreshold: 2, FailureWindow: 5 * time.Second, Cooldown: time.Second, ProbeUpSeconds: time.Second}, fc)

	b.RecordFailure()
	fc.Advance(10 * time.Second)
	b.RecordFailure()
	assert.Equal(t, Closed, b.State(), "first failure should have aged out of the window")
}

func TestManager_PerChannelIsolation(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := NewManager(Config{FailureThreshold: 1, FailureWindow: time.Minute, Cooldown: time.Second, ProbeUpSeconds: time.Second}, fc)

	m.For("5").RecordFailure()
	assert.Equal(t, Open, m.For("5").State())
	assert.Equal(t, Closed, m.For("6").State())

	states := m.States()
	assert.Equal(t, Open, states["5"])
	assert.Equal(t, Closed, states["6"])
}

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roto31/exstreamtv/internal/clock"
)

func TestOpen_EnforcesPerChannelCap(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(Config{MaxSessionsPerChannel: 2, IdleTimeout: time.Minute}, fc)

	_, err := m.Open("ch1", "1.1.1.1")
	require.NoError(t, err)
	_, err = m.Open("ch1", "1.1.1.2")
	require.NoError(t, err)
	_, err = m.Open("ch1", "1.1.1.3")
	require.ErrorIs(t, err, ErrSessionCapExceeded)
}

func TestOpen_IndependentChannelsHaveIndependentCaps(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(Config{MaxSessionsPerChannel: 1, IdleTimeout: time.Minute}, fc)

	_, err := m.Open("ch1", "1.1.1.1")
	require.NoError(t, err)
	_, err = m.Open("ch2", "1.1.1.1")
	require.NoError(t, err, "ch2 must not share ch1's cap")
}

func TestClose_FreesCapSlot(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(Config{MaxSessionsPerChannel: 1, IdleTimeout: time.Minute}, fc)

	s, err := m.Open("ch1", "1.1.1.1")
	require.NoError(t, err)
	m.Close(s)

	_, err = m.Open("ch1", "1.1.1.2")
	require.NoError(t, err)
}

func TestReapIdle_RemovesStaleSessions(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(Config{MaxSessionsPerChannel: 5, IdleTimeout: 300 * time.Second}, fc)

	s, err := m.Open("ch1", "1.1.1.1")
	require.NoError(t, err)
	fc.Advance(301 * time.Second)

	reaped := m.ReapIdle(context.Background())
	assert.Equal(t, 1, reaped)
	assert.Empty(t, m.ListByChannel("ch1"))
	_ = s
}

func TestRecordBytes_RefreshesIdleTimer(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(Config{MaxSessionsPerChannel: 5, IdleTimeout: 300 * time.Second}, fc)

	s, err := m.Open("ch1", "1.1.1.1")
	require.NoError(t, err)
	fc.Advance(200 * time.Second)
	m.RecordBytes(s, 1024)
	fc.Advance(200 * time.Second) // 400s since open, but only 200s since last activity

	reaped := m.ReapIdle(context.Background())
	assert.Equal(t, 0, reaped, "activity must reset the idle clock")
}

func TestRecordError_SignalsCloseAtThreshold(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(Config{MaxSessionsPerChannel: 5, IdleTimeout: time.Minute, MaxErrorsBeforeClose: 3}, fc)
	s, err := m.Open("ch1", "1.1.1.1")
	require.NoError(t, err)

	assert.False(t, m.RecordError(s))
	assert.False(t, m.RecordError(s))
	assert.True(t, m.RecordError(s))
}

func TestListByChannel_ReturnsSnapshotsOnly(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	m := New(DefaultConfig(), fc)
	_, err := m.Open("ch1", "1.1.1.1")
	require.NoError(t, err)

	snaps := m.ListByChannel("ch1")
	require.Len(t, snaps, 1)
	assert.Equal(t, "ch1", snaps[0].ChannelID)
}

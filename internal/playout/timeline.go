// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playout

import (
	"math/rand"
	"sync"
	"time"

	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/log"
)

// Schedule is the ordered set of items a Timeline cycles through for one
// channel, plus the mode flags from spec §3's ProgramSchedule.
type Schedule struct {
	Items                 []ScheduleItem
	KeepMultiPartEpisodes bool
	Shuffle               bool
	RandomStartPoint      bool
}

// Timeline owns one channel's anchor and answers locate/advance/resumeOffset
// per spec §4.5. Only the owning ChannelRuntime may call Advance.
type Timeline struct {
	mu        sync.Mutex
	channelID string
	schedule  Schedule
	order     []int // permutation over schedule.Items, identity unless Shuffle
	anchor    Anchor
	store     AnchorStore
	clock     clock.Clock
}

// NewTimeline creates a Timeline for channelID, loading any persisted anchor
// from store (R2: a cold start rehydrates exactly the pre-restart state).
func NewTimeline(channelID string, schedule Schedule, store AnchorStore, c clock.Clock) *Timeline {
	if c == nil {
		c = clock.System()
	}
	t := &Timeline{channelID: channelID, schedule: schedule, store: store, clock: c}
	t.order = identityOrder(len(schedule.Items))

	if a, err := store.Load(channelID); err == nil {
		t.anchor = a
		if schedule.Shuffle {
			t.order = shuffleOrder(len(schedule.Items), a.CycleStartTime)
		}
		return t
	}

	now := c.Now()
	t.anchor = Anchor{ChannelID: channelID, CycleStartTime: now, CurrentItemStart: now, ItemIndex: 0}
	if schedule.Shuffle {
		t.order = shuffleOrder(len(schedule.Items), now)
	}
	if schedule.RandomStartPoint && len(t.order) > 0 {
		t.anchor.ItemIndex = rand.New(rand.NewSource(now.UnixNano())).Intn(len(t.order))
	}
	_ = store.Save(t.anchor)
	return t
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// shuffleOrder produces a reproducible permutation seeded by the cycle start
// time, so restarts deterministically reproduce the same order.
func shuffleOrder(n int, seed time.Time) []int {
	order := identityOrder(n)
	r := rand.New(rand.NewSource(seed.UnixNano()))
	r.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

// Anchor returns a copy of the current anchor.
func (t *Timeline) Anchor() Anchor {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.anchor
}

// CurrentItem returns the item at the anchor's current position.
func (t *Timeline) CurrentItem() (ScheduleItem, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.currentItemLocked()
}

func (t *Timeline) currentItemLocked() (ScheduleItem, bool) {
	if len(t.schedule.Items) == 0 {
		return ScheduleItem{}, false
	}
	idx := t.order[t.anchor.ItemIndex%len(t.order)]
	return t.schedule.Items[idx], true
}

// Locate is a pure read of (schedule, anchor): it reports the item index
// and in-point offset that should be active at time now, without mutating
// state.
func (t *Timeline) Locate(now time.Time) (itemIndex int, inPointOffset time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	item, ok := t.currentItemLocked()
	if !ok {
		return 0, 0
	}
	elapsed := now.Sub(t.anchor.CurrentItemStart)
	if elapsed < 0 {
		elapsed = 0
	}
	return t.anchor.ItemIndex, item.InPoint + elapsed
}

// Advance moves to the next item, respecting multi-part grouping, and
// persists the new anchor. This is a planned transition (source ended
// naturally), not a restart, and does not go through the governor.
func (t *Timeline) Advance(nowAtTransition time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.order) == 0 {
		return
	}

	next := t.nextIndexLocked()
	t.anchor.ItemIndex = next
	t.anchor.CurrentItemStart = nowAtTransition
	t.anchor.ElapsedInItem = 0
	t.anchor.Counter++

	if err := t.store.Save(t.anchor); err != nil {
		log.L().Warn().Str("channel", t.channelID).Err(err).Msg("playout: failed to persist anchor on advance")
	}
}

// nextIndexLocked computes the next item index: exactly one position
// forward in the play order, wrapping at the end. Advances are natural
// end-of-item transitions, so advancing from one part of a contiguous
// multi-part group lands on the following part.
func (t *Timeline) nextIndexLocked() int {
	return (t.anchor.ItemIndex + 1) % len(t.order)
}

// ResumeOffset computes, after an unexpected restart at nowAtResume, how
// many seconds into the current item playback should resume, tolerant of
// clock drift (I5: within 2s of the true elapsed time).
func (t *Timeline) ResumeOffset(nowAtResume time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	derived := nowAtResume.Sub(t.anchor.CurrentItemStart)
	if derived < 0 {
		derived = 0
	}
	return derived
}

// RecordElapsed updates elapsedInItem and persists the anchor; callers
// invoke this at least every few seconds and on every item transition per
// spec §3 invariant (c).
func (t *Timeline) RecordElapsed(elapsed time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.anchor.ElapsedInItem = elapsed.Seconds()
	t.anchor.Counter++
	if err := t.store.Save(t.anchor); err != nil {
		log.L().Warn().Str("channel", t.channelID).Err(err).Msg("playout: failed to persist anchor")
	}
}

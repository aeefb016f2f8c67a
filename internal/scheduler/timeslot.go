// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package scheduler

import (
	"time"

	"github.com/roto31/exstreamtv/internal/metrics"
)

// TimeSlot is one entry in a TimeSlotSchedule.
type TimeSlot struct {
	StartTime        time.Time // time-of-day anchor; only hour/minute/second matter
	DurationMinutes  int
	CollectionRef    string
	OrderMode        OrderMode
	PaddingMode      PaddingMode
	FlexMode         FlexMode
	DaysOfWeekMask   int
}

func (s TimeSlot) containsTimeOfDay(t time.Time) bool {
	if s.DaysOfWeekMask&dayBit(t) == 0 {
		return false
	}
	start := timeOfDay(s.StartTime)
	cur := timeOfDay(t)
	end := start + time.Duration(s.DurationMinutes)*time.Minute
	return cur >= start && cur < end
}

func timeOfDay(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
}

// TimeSlotSchedule holds an unordered set of slots for one channel.
type TimeSlotSchedule struct {
	Slots   []TimeSlot
	Items   CollectionItems
	Fillers CollectionItems // used under PaddingMode=filler
}

// TimeSlotPicker implements Picker over a TimeSlotSchedule.
type TimeSlotPicker struct {
	schedule TimeSlotSchedule
}

// NewTimeSlotPicker constructs a picker over sched.
func NewTimeSlotPicker(sched TimeSlotSchedule) *TimeSlotPicker {
	return &TimeSlotPicker{schedule: sched}
}

// activeSlot returns the slot covering contextTime, or, if none is active
// right now, the next upcoming slot. The bool is false only when no slot has
// a non-zero DaysOfWeekMask.
func (p *TimeSlotPicker) activeSlot(contextTime time.Time) (TimeSlot, bool) {
	for _, s := range p.schedule.Slots {
		if s.containsTimeOfDay(contextTime) {
			return s, true
		}
	}
	return p.nextUpcoming(contextTime)
}

func (p *TimeSlotPicker) nextUpcoming(contextTime time.Time) (TimeSlot, bool) {
	var best TimeSlot
	var bestDelta time.Duration = -1
	cur := timeOfDay(contextTime)
	for _, s := range p.schedule.Slots {
		if s.DaysOfWeekMask == 0 {
			continue
		}
		start := timeOfDay(s.StartTime)
		delta := start - cur
		if delta < 0 {
			delta += 24 * time.Hour
		}
		if bestDelta == -1 || delta < bestDelta {
			bestDelta = delta
			best = s
		}
	}
	return best, bestDelta != -1
}

// PickNext implements Picker. When no slot is active, the returned ok bit
// and PaddingMode jointly tell the caller what to do: PaddingNone means
// "yield no item" (ChannelRuntime falls back to ErrorScreenSource, B1).
func (p *TimeSlotPicker) PickNext(contextTime time.Time) (MediaRef, WarnSlotOverflow, bool) {
	slot, found := p.activeSlot(contextTime)
	if !found {
		return MediaRef{}, WarnSlotOverflow{}, false
	}

	if !slot.containsTimeOfDay(contextTime) {
		switch slot.PaddingMode {
		case PaddingNone:
			metrics.EPGGapTotal.Inc()
			return MediaRef{}, WarnSlotOverflow{}, false
		case PaddingLoop, PaddingNext, PaddingFiller:
			// fall through to normal selection below using this slot's collection
		}
	}

	items := p.schedule.Items(slot.CollectionRef)
	if slot.PaddingMode == PaddingFiller && p.schedule.Fillers != nil && len(items) == 0 {
		items = p.schedule.Fillers(slot.CollectionRef)
	}

	id, ok := pickByOrder(items, slot.OrderMode, contextTime.Unix())
	if !ok {
		return MediaRef{}, WarnSlotOverflow{}, false
	}

	return MediaRef{CollectionRef: slot.CollectionRef, ItemID: id}, WarnSlotOverflow{}, true
}

// CompressFit decides, under FlexMode=compress, whether the candidate item
// duration fits the remaining slot time. Per the Open Question resolution,
// compression never splits a multi-part group: if the group alone overflows
// the slot, the caller gets WarnSlotOverflow{Overflowed:true} and the group
// is allowed to run long rather than being split.
func CompressFit(slot TimeSlot, remaining time.Duration, groupDuration time.Duration, isMultiPartGroup bool) WarnSlotOverflow {
	if slot.FlexMode != FlexCompress {
		return WarnSlotOverflow{}
	}
	if groupDuration <= remaining {
		return WarnSlotOverflow{}
	}
	if isMultiPartGroup {
		return WarnSlotOverflow{Overflowed: true, SlotStart: slot.StartTime}
	}
	return WarnSlotOverflow{}
}

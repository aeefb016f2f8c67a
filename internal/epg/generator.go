// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package epg

import (
	"time"

	"github.com/roto31/exstreamtv/internal/channels"
	"github.com/roto31/exstreamtv/internal/playout"
)

const xmltvTimeLayout = "20060102150405 -0700"

// TitleLookup resolves a PlayoutItem's MediaRefID to a human title and
// description. Boundary wiring supplies one backed by whatever catalog
// metadata the deployment has; a nil lookup falls back to the ref ID itself.
type TitleLookup func(mediaRefID string) (title, desc string)

// ChannelSource is the subset of Timeline a Generator needs: the schedule
// and the current anchor, nothing about how restarts are supervised.
type ChannelSource struct {
	Entity   channels.Entity
	Schedule playout.Schedule
	Anchor   playout.Anchor
	Order    []int // permutation over Schedule.Items, identity if unset
}

// Generate builds an XMLTV document projecting each channel's schedule
// forward from its anchor for horizon duration. Because the projection
// depends only on the schedule, the anchor and Order, the same inputs always
// project the same programmes: only the <tv> generator timestamp changes
// between runs (R3).
func Generate(sources []ChannelSource, lookup TitleLookup, horizon time.Duration) TV {
	if lookup == nil {
		lookup = func(ref string) (string, string) { return ref, "" }
	}

	tvChannels := make([]Channel, 0, len(sources))
	var programmes []Programme

	for _, src := range sources {
		tvChannels = append(tvChannels, Channel{
			ID:          src.Entity.ID,
			DisplayName: []string{src.Entity.Name},
		})
		programmes = append(programmes, projectProgrammes(src, lookup, horizon)...)
	}

	return Assemble(tvChannels, programmes)
}

// projectProgrammes walks the schedule forward in wall-clock time from the
// item the anchor currently points at, emitting one Programme per occurrence
// until horizon is covered. Item order follows src.Order (identity if nil);
// a shuffled Timeline's permutation is reflected only when the caller passes
// it in as Order.
func projectProgrammes(src ChannelSource, lookup TitleLookup, horizon time.Duration) []Programme {
	items := src.Schedule.Items
	if len(items) == 0 {
		return nil
	}
	order := src.Order
	if len(order) != len(items) {
		order = identityOrder(len(items))
	}

	start := src.Anchor.CurrentItemStart
	idx := src.Anchor.ItemIndex % len(order)
	deadline := start.Add(horizon)

	var out []Programme
	for cursor := start; cursor.Before(deadline); {
		item := items[order[idx%len(order)]]
		d := item.Duration()
		if d <= 0 {
			break
		}
		title, desc := lookup(item.MediaRefID)
		out = append(out, Programme{
			Start:   cursor.Format(xmltvTimeLayout),
			Stop:    cursor.Add(d).Format(xmltvTimeLayout),
			Channel: src.Entity.ID,
			Title:   Title{Text: title},
			Desc:    desc,
		})
		cursor = cursor.Add(d)
		idx++
	}
	return out
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

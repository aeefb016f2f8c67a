// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roto31/exstreamtv/internal/boundary"
	"github.com/roto31/exstreamtv/internal/catalogread"
	"github.com/roto31/exstreamtv/internal/channel"
	"github.com/roto31/exstreamtv/internal/channels"
	"github.com/roto31/exstreamtv/internal/clock"
	"github.com/roto31/exstreamtv/internal/config"
	"github.com/roto31/exstreamtv/internal/errorscreen"
	"github.com/roto31/exstreamtv/internal/governor"
	"github.com/roto31/exstreamtv/internal/log"
	"github.com/roto31/exstreamtv/internal/playout"
	"github.com/roto31/exstreamtv/internal/pool"
	"github.com/roto31/exstreamtv/internal/resolver"
	"github.com/roto31/exstreamtv/internal/scheduler"
	"github.com/roto31/exstreamtv/internal/sourcebuild"
)

// runtimeRegistry is the concrete boundary.Registry: it owns one
// channel.Runtime per configured channel and exposes their live anchors to
// the Boundary without the Boundary ever constructing a Runtime itself.
type runtimeRegistry struct {
	entries map[string]boundary.ChannelEntry
	order   []string
}

func (r *runtimeRegistry) Channels() []boundary.ChannelEntry {
	out := make([]boundary.ChannelEntry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id])
	}
	return out
}

func (r *runtimeRegistry) Channel(id string) (boundary.ChannelEntry, bool) {
	e, ok := r.entries[id]
	return e, ok
}

// buildRegistry constructs one ChannelRuntime per cfg.Channels, wiring each
// through the shared ProcessPool/Breaker-Manager/RestartGovernor and its own
// PlayoutTimeline, per spec §4.12's "one Runtime per channel, shared pool."
// catalog is optional (nil when cfg.CatalogDBPath is unset): when present, a
// channel whose ID has ProgramSchedule rows gets its content picked by a
// scheduler.TimeSlotPicker (C6) instead of the Timeline's own linear order.
func buildRegistry(ctx context.Context, cfg config.AppConfig, c clock.Clock, p *pool.Pool, gov *governor.Governor, cm *channels.Manager, resolv *resolver.Resolver, catalog *catalogread.Store) (*runtimeRegistry, error) {
	hw := sourcebuild.DetectHardware()
	profile := sourcebuild.DefaultProfile()

	reg := &runtimeRegistry{entries: make(map[string]boundary.ChannelEntry, len(cfg.Channels))}

	for _, chCfg := range cfg.Channels {
		schedule, err := loadSchedule(chCfg.ScheduleRef)
		if err != nil {
			return nil, fmt.Errorf("channel %s: %w", chCfg.ID, err)
		}

		storePath := filepath.Join(cfg.DataDir, "anchors", chCfg.ID)
		store, err := playout.NewStore(storePath)
		if err != nil {
			return nil, fmt.Errorf("channel %s: opening anchor store: %w", chCfg.ID, err)
		}

		tl := playout.NewTimeline(chCfg.ID, schedule, store, c)

		var picker scheduler.Picker
		if catalog != nil {
			slots, err := catalog.TimeSlots(ctx, chCfg.ID)
			if err != nil {
				return nil, fmt.Errorf("channel %s: loading time slots: %w", chCfg.ID, err)
			}
			if len(slots) > 0 {
				picker = scheduler.NewTimeSlotPicker(scheduler.TimeSlotSchedule{Slots: slots, Items: catalog.CollectionItems})
			}
		}

		starter := newSourceStarter(tl, resolv, hw, profile, picker, c)
		rt := channel.New(chCfg.ID, c, p, gov, tl, starter)

		reg.order = append(reg.order, chCfg.ID)
		reg.entries[chCfg.ID] = boundary.ChannelEntry{
			Entity:   cm.Get(chCfg.ID),
			Runtime:  rt,
			Timeline: tl,
			Schedule: schedule,
		}
	}

	return reg, nil
}

// newSourceStarter adapts one channel's content source into a
// channel.SourceStarter: locate the current item (from picker when the
// channel has a TimeSlotSchedule, otherwise from the Timeline's own linear
// order), resolve it, build the ffmpeg argv, falling back to the synthetic
// error screen at every failure point so a channel with no resolvable
// content still produces a valid MPEG-TS stream (B1/B2).
func newSourceStarter(tl *playout.Timeline, resolv *resolver.Resolver, hw sourcebuild.HardwareCapabilities, profile sourcebuild.Profile, picker scheduler.Picker, c clock.Clock) channel.SourceStarter {
	logger := log.WithComponent("channel.sourcestart")

	return func(ctx context.Context, resumeOffset time.Duration) ([]string, []string, error) {
		mediaRefID, ok := currentMediaRefID(tl, picker, c)
		if !ok {
			logger.Debug().Msg("no current schedule item, serving error screen")
			return errorscreen.Build(errorscreen.DefaultConfig()), nil, nil
		}

		ref, err := parseMediaRef(mediaRefID)
		if err != nil {
			logger.Warn().Err(err).Str("mediaRefId", mediaRefID).Msg("unresolvable media ref, serving error screen")
			return errorscreen.Build(errorscreen.DefaultConfig()), nil, nil
		}

		resolved, err := resolv.Resolve(ctx, ref)
		if err != nil {
			logger.Warn().Err(err).Str("mediaRefId", mediaRefID).Msg("resolve failed, serving error screen")
			return errorscreen.Build(errorscreen.DefaultConfig()), nil, nil
		}

		argv, err := sourcebuild.Build(resolved, profile, hw, resumeOffset)
		if err != nil {
			logger.Warn().Err(err).Str("mediaRefId", mediaRefID).Msg("source build failed, serving error screen")
			return errorscreen.Build(errorscreen.DefaultConfig()), nil, nil
		}
		return argv, nil, nil
	}
}

// currentMediaRefID resolves the media ref ID to play right now: picker
// (scheduler.TimeSlotPicker/BalancePicker) takes precedence when the
// channel has one, otherwise it falls back to the Timeline's own linear
// schedule position.
func currentMediaRefID(tl *playout.Timeline, picker scheduler.Picker, c clock.Clock) (string, bool) {
	if picker != nil {
		ref, _, ok := picker.PickNext(c.Now())
		if !ok {
			return "", false
		}
		return ref.ItemID, true
	}
	item, ok := tl.CurrentItem()
	if !ok {
		return "", false
	}
	return item.MediaRefID, true
}

// startAll starts every channel's Runtime in its own goroutine under g and
// returns without waiting. A single channel crashing out its supervise loop
// does not bring down the others: its error is logged and the goroutine
// returns nil, so nothing is reported through the shared error group.
func startAll(ctx context.Context, reg *runtimeRegistry, g *errgroup.Group) {
	for id, entry := range reg.entries {
		g.Go(func() error {
			if err := entry.Runtime.Start(ctx); err != nil && ctx.Err() == nil {
				log.WithComponent("channel").Error().Err(err).Str("channel", id).Msg("channel runtime exited")
			}
			return nil
		})
	}
}

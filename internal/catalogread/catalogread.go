// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package catalogread is the read-only repository for Channel,
// ProgramSchedule, and PlayoutItem records (§3). It is deliberately
// read-only: the admin surface that authors channel lineups and schedules
// writes through a separate path, and the streaming core only ever queries
// this store to build a TimeSlot scheduler (internal/scheduler) for a
// channel.
package catalogread

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure Go driver, no CGO

	"github.com/roto31/exstreamtv/internal/scheduler"
)

// Store is a read-only handle onto the catalog database.
type Store struct {
	db *sql.DB
}

// Open opens path read-only with the busy_timeout/WAL pragmas the rest of
// the codebase's sqlite stores use for a read-heavy workload.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalogread: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalogread: ping %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// ChannelRecord is one row of the Channel table.
type ChannelRecord struct {
	ID      string
	Name    string
	Enabled bool
}

// Channels returns every Channel row, for deployments that source their
// lineup from the catalog database instead of (or alongside) YAML config.
func (s *Store) Channels(ctx context.Context) ([]ChannelRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, enabled FROM channels ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("catalogread: query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []ChannelRecord
	for rows.Next() {
		var r ChannelRecord
		var enabled int
		if err := rows.Scan(&r.ID, &r.Name, &enabled); err != nil {
			return nil, fmt.Errorf("catalogread: scan channel: %w", err)
		}
		r.Enabled = enabled != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// TimeSlots returns channelID's ProgramSchedule rows as scheduler.TimeSlot
// values, ordered by slot_index, ready to hand to
// scheduler.NewTimeSlotPicker.
func (s *Store) TimeSlots(ctx context.Context, channelID string) ([]scheduler.TimeSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT start_time, duration_minutes, collection_ref, order_mode, padding_mode, flex_mode, days_of_week_mask
		FROM program_schedule
		WHERE channel_id = ?
		ORDER BY slot_index`, channelID)
	if err != nil {
		return nil, fmt.Errorf("catalogread: query program_schedule for %s: %w", channelID, err)
	}
	defer func() { _ = rows.Close() }()

	var out []scheduler.TimeSlot
	for rows.Next() {
		var startTime string
		var slot scheduler.TimeSlot
		var orderMode, paddingMode, flexMode string
		if err := rows.Scan(&startTime, &slot.DurationMinutes, &slot.CollectionRef, &orderMode, &paddingMode, &flexMode, &slot.DaysOfWeekMask); err != nil {
			return nil, fmt.Errorf("catalogread: scan program_schedule row: %w", err)
		}
		t, err := time.Parse("15:04:05", startTime)
		if err != nil {
			return nil, fmt.Errorf("catalogread: parsing start_time %q: %w", startTime, err)
		}
		slot.StartTime = t
		slot.OrderMode = scheduler.OrderMode(orderMode)
		slot.PaddingMode = scheduler.PaddingMode(paddingMode)
		slot.FlexMode = scheduler.FlexMode(flexMode)
		out = append(out, slot)
	}
	return out, rows.Err()
}

// CollectionItems implements scheduler.CollectionItems against the
// PlayoutItem table: the ordered members of one collection, by media ref
// ID, as the scheduler expects.
func (s *Store) CollectionItems(collectionRef string) []string {
	rows, err := s.db.Query(`
		SELECT media_ref_id FROM playout_items
		WHERE collection_ref = ?
		ORDER BY position`, collectionRef)
	if err != nil {
		return nil
	}
	defer func() { _ = rows.Close() }()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return out
		}
		out = append(out, id)
	}
	return out
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package channels is the Channel entity store (§4.15): it persists the
// admin-mutable attributes of each channel (enabled bit, name, group,
// streaming mode, HDHomeRun tuner slot) as a JSON-file-backed repository
// the streaming core treats as read-mostly. Writes arrive from the
// out-of-scope admin surface; the core never mutates entries itself.
package channels

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/roto31/exstreamtv/internal/log"
)

// StreamingMode selects how a channel's ChannelRuntime paces output.
type StreamingMode string

const (
	ModeRealtime StreamingMode = "realtime"
	ModeBurst    StreamingMode = "burst"
)

// Entity is one channel's admin-mutable record.
type Entity struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Group         string        `json:"group,omitempty"`
	Enabled       bool          `json:"enabled"`
	StreamingMode StreamingMode `json:"streamingMode,omitempty"`
	DeviceSlot    int           `json:"deviceSlot,omitempty"`
}

// Manager is the read-mostly repository of channel Entities, persisted to
// a single JSON file keyed by channel ID.
type Manager struct {
	mu       sync.RWMutex
	filePath string
	entities map[string]Entity

	// knownChannelIDs is supplied by the core at construction time so All()
	// can enumerate statically-configured channels that have never been
	// Upserted by the admin surface. It is read-only enumeration metadata,
	// never written to entities or persisted: the core still never mutates
	// the entity store itself.
	knownChannelIDs []string
}

// NewManager constructs a Manager backed by channels.json under dataDir.
// knownChannelIDs lists the channels the core is configured to run; All()
// reports them as enabled-by-default even before any admin-side Upsert.
func NewManager(dataDir string, knownChannelIDs ...string) *Manager {
	return &Manager{
		filePath:        filepath.Join(dataDir, "channels.json"),
		entities:        make(map[string]Entity),
		knownChannelIDs: knownChannelIDs,
	}
}

// Load reads the repository from disk. A missing file is not an error:
// the repository starts empty and every channel is implicitly enabled
// until an admin-side write creates an entry.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var list []Entity
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}

	m.entities = make(map[string]Entity, len(list))
	for _, e := range list {
		m.entities[e.ID] = e
	}
	log.L().Info().Int("count", len(m.entities)).Msg("loaded channel entities")
	return nil
}

// Save persists the repository to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		list = append(list, e)
	}

	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.filePath, data, 0o644)
}

// Get returns the entity for channelID, or a default-enabled Entity if no
// record exists yet (per §4.15, "not in the map" means enabled).
func (m *Manager) Get(channelID string) Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if e, ok := m.entities[channelID]; ok {
		return e
	}
	return Entity{ID: channelID, Enabled: true}
}

// IsEnabled reports whether channelID's stream should run at all.
// ChannelRuntime does not consult it; it only reflects the stored bit.
func (m *Manager) IsEnabled(channelID string) bool {
	return m.Get(channelID).Enabled
}

// All returns every channel entity currently enabled, for boundary
// handlers that enumerate the active lineup (M3U, HDHomeRun lineup.json).
// Known channel IDs with no persisted record fall back to Get's
// default-enabled Entity, so a fresh deployment (nothing ever Upserted)
// still lineups every configured channel.
func (m *Manager) All() []Entity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entity, 0, len(m.entities)+len(m.knownChannelIDs))
	seen := make(map[string]bool, len(m.entities))
	for _, e := range m.entities {
		seen[e.ID] = true
		if e.Enabled {
			out = append(out, e)
		}
	}
	for _, id := range m.knownChannelIDs {
		if seen[id] {
			continue
		}
		out = append(out, Entity{ID: id, Enabled: true})
	}
	return out
}

// Upsert writes e into the repository and persists it. The streaming core
// never calls this itself; it exists for the out-of-scope admin surface
// to drive through this same repository type.
func (m *Manager) Upsert(e Entity) error {
	m.mu.Lock()
	m.entities[e.ID] = e
	m.mu.Unlock()
	return m.Save()
}

// SetEnabled toggles channelID's enabled bit, creating a default record if
// none exists.
func (m *Manager) SetEnabled(channelID string, enabled bool) error {
	m.mu.Lock()
	e, ok := m.entities[channelID]
	if !ok {
		e = Entity{ID: channelID}
	}
	e.Enabled = enabled
	m.entities[channelID] = e
	m.mu.Unlock()
	return m.Save()
}

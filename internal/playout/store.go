// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package playout

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned when no anchor has been persisted for a channel yet.
var ErrNotFound = errors.New("playout: anchor not found")

// AnchorStore persists PlayoutAnchors. NewStore(path) backs it with badger
// when path is non-empty, or an in-memory map when path is "" (tests and
// ephemeral deployments).
type AnchorStore interface {
	Load(channelID string) (Anchor, error)
	Save(a Anchor) error
	Close() error
}

// NewStore is a backend/dir factory: an empty path selects the in-memory
// backend, any other path opens a badger database rooted there.
func NewStore(path string) (AnchorStore, error) {
	if path == "" {
		return newMemoryStore(), nil
	}
	return newBadgerStore(path)
}

type memoryStore struct {
	mu   sync.Mutex
	byID map[string]Anchor
}

func newMemoryStore() *memoryStore {
	return &memoryStore{byID: make(map[string]Anchor)}
}

func (s *memoryStore) Load(channelID string) (Anchor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[channelID]
	if !ok {
		return Anchor{}, ErrNotFound
	}
	return a, nil
}

func (s *memoryStore) Save(a Anchor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[a.ChannelID]
	if ok && existing.Counter >= a.Counter {
		return nil // stale write, ignored per R2/monotonic-counter contract
	}
	s.byID[a.ChannelID] = a
	return nil
}

func (s *memoryStore) Close() error { return nil }

type badgerStore struct {
	db *badger.DB
}

func newBadgerStore(path string) (*badgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &badgerStore{db: db}, nil
}

func anchorKey(channelID string) []byte {
	return []byte("anchor:" + channelID)
}

func (s *badgerStore) Load(channelID string) (Anchor, error) {
	var a Anchor
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(anchorKey(channelID))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &a)
		})
	})
	return a, err
}

func (s *badgerStore) Save(a Anchor) error {
	return s.db.Update(func(txn *badger.Txn) error {
		existing, err := txn.Get(anchorKey(a.ChannelID))
		if err == nil {
			var prev Anchor
			if verr := existing.Value(func(val []byte) error {
				return json.Unmarshal(val, &prev)
			}); verr == nil && prev.Counter >= a.Counter {
				return nil
			}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		buf, merr := json.Marshal(a)
		if merr != nil {
			return merr
		}
		return txn.Set(anchorKey(a.ChannelID), buf)
	})
}

func (s *badgerStore) Close() error { return s.db.Close() }

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/roto31/exstreamtv/internal/log"
)

// Holder holds the current AppConfig with atomic, hot-reloadable access:
// an atomic.Pointer swapped only after the replacement config passes
// Validate, so a bad edit never replaces a good running config.
type Holder struct {
	path     string
	current  atomic.Pointer[AppConfig]
	watcher  *fsnotify.Watcher

	mu        sync.Mutex
	listeners []chan<- AppConfig
}

// NewHolder loads path once and constructs a Holder around the result.
func NewHolder(path string) (*Holder, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	h := &Holder{path: path}
	h.current.Store(&cfg)
	return h, nil
}

// Get returns the current config (thread-safe read, no copy needed since
// AppConfig is replaced wholesale, never mutated in place).
func (h *Holder) Get() AppConfig {
	return *h.current.Load()
}

// Subscribe registers ch to receive every successfully applied reload.
// Delivery is best-effort: a full channel drops the notification rather
// than blocking the reload path.
func (h *Holder) Subscribe(ch chan<- AppConfig) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, ch)
}

// Reload re-reads h.path, validates it, and swaps it in only on success.
// The previous config remains active if reload fails.
func (h *Holder) Reload() error {
	cfg, err := Load(h.path)
	if err != nil {
		log.L().Warn().Err(err).Str("path", h.path).Msg("config reload failed, keeping previous config")
		return err
	}
	h.current.Store(&cfg)
	log.L().Info().Str("path", h.path).Msg("config reloaded")

	h.mu.Lock()
	listeners := append([]chan<- AppConfig(nil), h.listeners...)
	h.mu.Unlock()
	for _, ch := range listeners {
		select {
		case ch <- cfg:
		default:
		}
	}
	return nil
}

// StartWatcher watches h.path's directory for writes/renames (editors
// commonly replace a file via rename-over) and triggers Reload on each
// relevant event until ctx is cancelled. Errors creating the watcher or
// adding the directory are returned; once watching has started, watcher
// and reload errors are logged and swallowed.
func (h *Holder) StartWatcher(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	h.watcher = w

	dir := filepath.Dir(h.path)
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(h.path) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := h.Reload(); err != nil {
					log.L().Warn().Err(err).Msg("config: watcher-triggered reload failed")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.L().Warn().Err(err).Msg("config: watcher error")
			}
		}
	}()
	return nil
}

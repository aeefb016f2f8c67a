// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSchedule_ParsesItems(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedule.yaml")
	doc := `
shuffle: false
items:
  - mediaRefId: "local:/media/a.mp4"
    inPointSeconds: 0
    outPointSeconds: 1800
  - mediaRefId: "local:/media/b.mp4"
    inPointSeconds: 0
    outPointSeconds: 900
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	sched, err := loadSchedule(path)
	require.NoError(t, err)
	require.Len(t, sched.Items, 2)
	assert.Equal(t, "local:/media/a.mp4", sched.Items[0].MediaRefID)
	assert.Equal(t, 30*time.Minute, sched.Items[0].Duration())
	assert.False(t, sched.Shuffle)
}

func TestLoadSchedule_MissingFileReturnsError(t *testing.T) {
	_, err := loadSchedule(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

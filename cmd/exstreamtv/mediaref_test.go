// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roto31/exstreamtv/internal/resolver"
)

func TestParseMediaRef_DispatchesOnScheme(t *testing.T) {
	ref, err := parseMediaRef("local:/media/show.mp4")
	require.NoError(t, err)
	assert.Equal(t, resolver.Local, ref.Kind)
	assert.Equal(t, "/media/show.mp4", ref.Path)

	ref, err = parseMediaRef("youtube:dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, resolver.YouTube, ref.Kind)
	assert.Equal(t, "dQw4w9WgXcQ", ref.VideoID)

	ref, err = parseMediaRef("archiveorg:some_id")
	require.NoError(t, err)
	assert.Equal(t, resolver.ArchiveOrg, ref.Kind)
	assert.Equal(t, "some_id", ref.ArchiveID)
}

func TestParseMediaRef_SchemelessDefaultsToLocal(t *testing.T) {
	ref, err := parseMediaRef("/media/show.mp4")
	require.NoError(t, err)
	assert.Equal(t, resolver.Local, ref.Kind)
	assert.Equal(t, "/media/show.mp4", ref.Path)
}

func TestParseMediaRef_UnknownSchemeErrors(t *testing.T) {
	_, err := parseMediaRef("ftp:somewhere")
	assert.Error(t, err)
}

func TestLocalBackend_ResolvesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, []byte("fake"), 0o644))

	src, err := localBackend{}.Resolve(context.Background(), resolver.MediaRef{Kind: resolver.Local, Path: path})
	require.NoError(t, err)
	assert.Equal(t, path, src.PrimaryURI)
	assert.True(t, src.DirectPlayCandidate)
}

func TestLocalBackend_MissingFileErrors(t *testing.T) {
	_, err := localBackend{}.Resolve(context.Background(), resolver.MediaRef{Kind: resolver.Local, Path: "/does/not/exist.mp4"})
	assert.Error(t, err)
}

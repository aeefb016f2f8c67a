package epg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrite_AtomicallyCreatesFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "xmltv.xml")

	tv := Assemble([]Channel{{ID: "ch1", DisplayName: []string{"Channel One"}}}, nil)
	require.NoError(t, Write(tv, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `<tv generator-info-name="exstreamtv"`)
	assert.Contains(t, string(data), "Channel One")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file after rename")
}

func TestWrite_OverwritesExistingFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "xmltv.xml")
	require.NoError(t, os.WriteFile(out, []byte("stale"), 0o644))

	tv := Assemble(nil, nil)
	require.NoError(t, Write(tv, out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "stale")
}

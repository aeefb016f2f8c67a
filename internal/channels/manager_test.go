package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGet_UnknownChannelDefaultsToEnabled(t *testing.T) {
	m := NewManager(t.TempDir())
	e := m.Get("ch1")
	assert.True(t, e.Enabled)
}

func TestSetEnabled_PersistsAcrossLoad(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	require.NoError(t, m.SetEnabled("ch1", false))

	m2 := NewManager(dir)
	require.NoError(t, m2.Load())
	assert.False(t, m2.IsEnabled("ch1"))
}

func TestAll_OnlyReturnsEnabledChannels(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Upsert(Entity{ID: "ch1", Enabled: true}))
	require.NoError(t, m.Upsert(Entity{ID: "ch2", Enabled: false}))

	all := m.All()
	require.Len(t, all, 1)
	assert.Equal(t, "ch1", all[0].ID)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Load())
}

func TestAll_IncludesKnownChannelsNeverUpserted(t *testing.T) {
	m := NewManager(t.TempDir(), "ch1", "ch2")

	all := m.All()
	ids := make([]string, 0, len(all))
	for _, e := range all {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"ch1", "ch2"}, ids)
}

func TestAll_PersistedRecordOverridesKnownDefault(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, "ch1")
	require.NoError(t, m.SetEnabled("ch1", false))

	all := m.All()
	assert.Empty(t, all, "an explicit disabled record must win over the known-channel default")
}

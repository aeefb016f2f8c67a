package catalogread

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

const testSchema = `
CREATE TABLE channels (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1
);
CREATE TABLE program_schedule (
	channel_id TEXT NOT NULL,
	slot_index INTEGER NOT NULL,
	start_time TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL,
	collection_ref TEXT NOT NULL,
	order_mode TEXT NOT NULL,
	padding_mode TEXT NOT NULL,
	flex_mode TEXT NOT NULL,
	days_of_week_mask INTEGER NOT NULL
);
CREATE TABLE playout_items (
	collection_ref TEXT NOT NULL,
	position INTEGER NOT NULL,
	media_ref_id TEXT NOT NULL
);
`

func newTestDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO channels (id, name, enabled) VALUES ('ch1', 'Channel One', 1), ('ch2', 'Channel Two', 0)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO program_schedule
		(channel_id, slot_index, start_time, duration_minutes, collection_ref, order_mode, padding_mode, flex_mode, days_of_week_mask)
		VALUES ('ch1', 0, '06:00:00', 120, 'morning', 'ordered', 'loop', 'extend', 127)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO playout_items (collection_ref, position, media_ref_id) VALUES
		('morning', 0, 'media-a'), ('morning', 1, 'media-b')`)
	require.NoError(t, err)

	return path
}

func TestChannels_ReturnsAllRows(t *testing.T) {
	path := newTestDB(t)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	channels, err := store.Channels(context.Background())
	require.NoError(t, err)
	require.Len(t, channels, 2)
	require.Equal(t, "ch1", channels[0].ID)
	require.True(t, channels[0].Enabled)
	require.False(t, channels[1].Enabled)
}

func TestTimeSlots_ParsesStartTimeAndModes(t *testing.T) {
	path := newTestDB(t)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	slots, err := store.TimeSlots(context.Background(), "ch1")
	require.NoError(t, err)
	require.Len(t, slots, 1)
	require.Equal(t, 6, slots[0].StartTime.Hour())
	require.Equal(t, 120, slots[0].DurationMinutes)
	require.Equal(t, "morning", slots[0].CollectionRef)
}

func TestTimeSlots_UnknownChannelIsEmpty(t *testing.T) {
	path := newTestDB(t)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	slots, err := store.TimeSlots(context.Background(), "does-not-exist")
	require.NoError(t, err)
	require.Empty(t, slots)
}

func TestCollectionItems_OrdersByPosition(t *testing.T) {
	path := newTestDB(t)
	store, err := Open(path)
	require.NoError(t, err)
	defer store.Close()

	items := store.CollectionItems("morning")
	require.Equal(t, []string{"media-a", "media-b"}, items)
}

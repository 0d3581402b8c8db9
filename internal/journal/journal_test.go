package journal_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ikofan/blinkobot/internal/journal"
)

func newTestDB(t *testing.T) *journal.DB {
	t.Helper()

	db, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err, "Setup: could not open journal db")
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.Init(), "Setup: could not apply schema")
	// Init must be idempotent, it runs on every start.
	require.NoError(t, db.Init())
	return db
}

func TestRecordAndResolve(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	id, err := db.Record(journal.Entry{ChatID: 42, MessageID: 7, Content: "a thought"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	stats, err := db.Stats()
	require.NoError(t, err)
	assert.Equal(t, journal.Stats{Pending: 1}, stats)

	require.NoError(t, db.MarkSaved(id))
	stats, err = db.Stats()
	require.NoError(t, err)
	assert.Equal(t, journal.Stats{Saved: 1}, stats)

	id2, err := db.Record(journal.Entry{ChatID: 42, MessageID: 8, Content: "another"})
	require.NoError(t, err)
	require.NoError(t, db.MarkFailed(id2, "connection refused"))

	stats, err = db.Stats()
	require.NoError(t, err)
	assert.Equal(t, journal.Stats{Saved: 1, Failed: 1}, stats)
}

func TestFailedTextEntries(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	textID, err := db.Record(journal.Entry{ChatID: 1, MessageID: 1, Content: "retry me"})
	require.NoError(t, err)
	require.NoError(t, db.MarkFailed(textID, "timeout"))

	// Failed media captures have no replayable bytes and must not show up.
	mediaID, err := db.Record(journal.Entry{ChatID: 1, MessageID: 2, Content: "caption", Attachments: 3})
	require.NoError(t, err)
	require.NoError(t, db.MarkFailed(mediaID, "upload failed"))

	savedID, err := db.Record(journal.Entry{ChatID: 1, MessageID: 3, Content: "done"})
	require.NoError(t, err)
	require.NoError(t, db.MarkSaved(savedID))

	entries, err := db.FailedTextEntries(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, textID, entries[0].ID)
	assert.Equal(t, "retry me", entries[0].Content)
	assert.Equal(t, "timeout", entries[0].Error)
	assert.Equal(t, journal.StatusFailed, entries[0].Status)
}

func TestFailedTextEntriesLimit(t *testing.T) {
	t.Parallel()
	db := newTestDB(t)

	for i := 0; i < 5; i++ {
		id, err := db.Record(journal.Entry{ChatID: 1, MessageID: i, Content: "x"})
		require.NoError(t, err)
		require.NoError(t, db.MarkFailed(id, "down"))
	}

	entries, err := db.FailedTextEntries(3)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

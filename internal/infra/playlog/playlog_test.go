package playlog

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trakify/internal/domain/track"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "nested", "playlog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLog_RecordAndRecent(t *testing.T) {
	l := openTestLog(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, title := range []string{"A", "B", "C"} {
		require.NoError(t, l.RecordPlay(track.QueueItem{
			ID: "id-" + title, Title: title, Artist: "X", ContentRef: "/m/" + title + ".mp3",
		}))
	}

	entries, err := l.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "C", entries[0].Title)
	assert.Equal(t, "B", entries[1].Title)
	assert.Equal(t, "id-C", entries[0].ItemID)
	assert.Equal(t, "/m/C.mp3", entries[0].ContentRef)
	assert.Equal(t, base.Add(3*time.Minute), entries[0].PlayedAt)
}

func TestLog_RecentEmpty(t *testing.T) {
	l := openTestLog(t)
	entries, err := l.Recent(10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLog_ReopenKeepsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "playlog.db")
	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.RecordPlay(track.QueueItem{ID: "1", Title: "A", ContentRef: "/a.mp3"}))
	require.NoError(t, l.Close())

	l, err = Open(path)
	require.NoError(t, err)
	defer l.Close()
	entries, err := l.Recent(0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestLog_Closed(t *testing.T) {
	l := openTestLog(t)
	require.NoError(t, l.Close())
	assert.Error(t, l.RecordPlay(track.QueueItem{Title: "A"}))
	_, err := l.Recent(1)
	assert.Error(t, err)
	assert.NoError(t, l.Close())
}

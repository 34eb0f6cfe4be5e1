package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedTracker(store StateStore, at time.Time) *Tracker {
	t := NewTracker(store)
	t.now = func() time.Time { return at }
	return t
}

func TestRecordHit_IncrementsAllWindows(t *testing.T) {
	store := NewMemoryStore()
	tr := fixedTracker(store, time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		_, err := tr.RecordHit()
		require.NoError(t, err)
	}

	u, err := tr.Status()
	require.NoError(t, err)
	assert.Equal(t, Usage{Minute: 3, Daily: 3, Weekly: 3, Monthly: 3}, u)
}

func TestStatus_LazyMinuteReset(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2026, 8, 31, 10, 30, 0, 0, time.UTC)
	tr := fixedTracker(store, at)

	for i := 0; i < 5; i++ {
		_, err := tr.RecordHit()
		require.NoError(t, err)
	}

	// Same minute: stored count is live.
	u, err := tr.Status()
	require.NoError(t, err)
	assert.Equal(t, 5, u.Minute)

	// Next minute: minute counter reads zero, day unchanged. Status must
	// not mutate the stored blob.
	tr.now = func() time.Time { return at.Add(time.Minute) }
	u, err = tr.Status()
	require.NoError(t, err)
	assert.Equal(t, 0, u.Minute)
	assert.Equal(t, 5, u.Daily)

	st, _ := store.Load()
	assert.Equal(t, 5, st.MinuteHits, "Status must not reset persisted counters")
}

func TestRecordHit_ResetsStaleWindowsOnWrite(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2026, 8, 31, 23, 59, 0, 0, time.UTC)
	tr := fixedTracker(store, at)

	_, err := tr.RecordHit()
	require.NoError(t, err)

	// Crossing midnight (and the month boundary) resets day and month,
	// keeps the running week.
	tr.now = func() time.Time { return time.Date(2026, 9, 1, 0, 0, 30, 0, time.UTC) }
	st, err := tr.RecordHit()
	require.NoError(t, err)

	assert.Equal(t, 1, st.MinuteHits)
	assert.Equal(t, 1, st.DailyHits)
	assert.Equal(t, 2, st.WeeklyHits, "Aug 31 and Sep 1 2026 share an ISO week")
	assert.Equal(t, 1, st.MonthlyHits)
}

func TestUsage_Exceeded(t *testing.T) {
	limits := Limits{Minute: 25, Daily: 250, Weekly: 1000, Monthly: 2500}

	_, over := Usage{Minute: 24, Daily: 10}.Exceeded(limits)
	assert.False(t, over)

	period, over := Usage{Minute: 25}.Exceeded(limits)
	assert.True(t, over)
	assert.Equal(t, "minute", period)

	period, over = Usage{Daily: 300}.Exceeded(limits)
	assert.True(t, over)
	assert.Equal(t, "daily", period)
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := t.TempDir() + "/api_usage.json"
	fs, err := NewFileStore(path)
	require.NoError(t, err)

	st, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, State{}, st, "missing file reads as zero state")

	want := State{DailyHits: 7, LastDay: "2026-08-31"}
	require.NoError(t, fs.Save(want))

	got, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/karwanua/internal/environment"
)

func openTestDB(t *testing.T, maxHistory int, maxAge time.Duration, opts ...Option) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "snapshots.db"), maxHistory, maxAge, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStore_LatestAndNotFound(t *testing.T) {
	s := openTestDB(t, 0, 0)

	_, err := s.GetLatest(jakarta)
	require.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	snap := snapAt(base.Add(time.Hour))
	snap.AirQuality = &environment.AirQualityReport{Success: true, Metadata: environment.AirQualityMetadata{Source: "open-meteo"}}
	require.NoError(t, s.SaveSnapshot(jakarta, snapAt(base)))
	require.NoError(t, s.SaveSnapshot(jakarta, snap))

	latest, err := s.GetLatest(jakarta)
	require.NoError(t, err)
	assert.True(t, latest.Timestamp.Equal(base.Add(time.Hour)))
	require.NotNil(t, latest.AirQuality)
	assert.Equal(t, "open-meteo", latest.AirQuality.Metadata.Source)
}

func TestSQLiteStore_RetentionByCount(t *testing.T) {
	s := openTestDB(t, 2, 0)
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveSnapshot(jakarta, snapAt(base.Add(time.Duration(i)*time.Hour))))
	}

	got, err := s.GetRange(jakarta, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Timestamp.Equal(base.Add(3*time.Hour)))
	assert.True(t, got[1].Timestamp.Equal(base.Add(4*time.Hour)))
}

func TestSQLiteStore_RetentionByAgeKeepsNewest(t *testing.T) {
	now := time.Date(2024, 6, 2, 12, 0, 0, 0, time.UTC)
	s := openTestDB(t, 0, time.Hour, WithClock(clockwork.NewFakeClockAt(now)))

	require.NoError(t, s.SaveSnapshot(jakarta, snapAt(now.Add(-3*time.Hour))))
	require.NoError(t, s.SaveSnapshot(jakarta, snapAt(now.Add(-2*time.Hour))))

	// Both are stale, but the newest one survives.
	got, err := s.GetRange(jakarta, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(now.Add(-2*time.Hour)))

	require.NoError(t, s.SaveSnapshot(jakarta, snapAt(now)))
	got, err = s.GetRange(jakarta, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Timestamp.Equal(now))
}

func TestSQLiteStore_RangeIsInclusiveAndPerLocation(t *testing.T) {
	s := openTestDB(t, 0, 0)
	london := environment.Location{Latitude: 51.5074, Longitude: -0.1278}
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveSnapshot(jakarta, snapAt(base.Add(time.Duration(i)*time.Hour))))
	}
	require.NoError(t, s.SaveSnapshot(london, environment.Snapshot{Location: london, Timestamp: base}))

	got, err := s.GetRange(jakarta, base.Add(time.Hour), base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 2)

	_, err = s.GetRange(london, base.Add(time.Hour), base.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "snapshots.db")
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	s, err := OpenSQLiteStore(path, 0, 0)
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(jakarta, snapAt(base)))
	require.NoError(t, s.Close())

	s, err = OpenSQLiteStore(path, 0, 0)
	require.NoError(t, err)
	defer s.Close()

	latest, err := s.GetLatest(jakarta)
	require.NoError(t, err)
	assert.Equal(t, "Jakarta", latest.Location.DisplayName)
}

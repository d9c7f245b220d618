package store_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/upperair/soundings/internal/domain"
	"github.com/upperair/soundings/internal/observability"
	"github.com/upperair/soundings/internal/store"
)

var baseTime = time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*store.Store, *clockwork.FakeClock) {
	t.Helper()

	db, err := sql.Open("sqlite3", "file::memory:?_foreign_keys=on")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	// The in-memory database vanishes when its sole connection closes.
	db.SetMaxOpenConns(1)

	clock := clockwork.NewFakeClockAt(baseTime)
	s := store.New(db, clock, slog.Default(), observability.NewMetricsForTesting())
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s, clock
}

func coord(v float64) *float64 { return &v }

func TestUpsertStations(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	t.Run("empty input is a no-op", func(t *testing.T) {
		n, err := s.UpsertStations(ctx, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("insert then refresh", func(t *testing.T) {
		n, err := s.UpsertStations(ctx, []domain.Station{
			{ID: "72469", Name: "Denver", Lat: coord(39.77), Lon: coord(-104.87), Src: "RAOB", UpdatedAt: baseTime},
			{ID: "72456", Name: "Topeka", UpdatedAt: baseTime},
		})
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		later := baseTime.Add(time.Hour)
		_, err = s.UpsertStations(ctx, []domain.Station{
			{ID: "72469", Name: "Denver/Stapleton", Lat: coord(39.78), Lon: coord(-104.88), Src: "RAOB", UpdatedAt: later},
		})
		require.NoError(t, err)

		st, err := s.GetStation(ctx, "72469")
		require.NoError(t, err)
		assert.Equal(t, "Denver/Stapleton", st.Name)
		require.True(t, st.HasCoords())
		assert.Equal(t, 39.78, *st.Lat)
		assert.Equal(t, later, st.UpdatedAt)

		all, err := s.ListStations(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 2, "refresh must not duplicate")
	})

	t.Run("station without coordinates", func(t *testing.T) {
		st, err := s.GetStation(ctx, "72456")
		require.NoError(t, err)
		assert.False(t, st.HasCoords())
		assert.Nil(t, st.Lat)
		assert.Nil(t, st.Lon)
	})
}

func TestEnsureStation(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	t.Run("creates a placeholder named after the id", func(t *testing.T) {
		st, err := s.EnsureStation(ctx, "72469", "")
		require.NoError(t, err)
		assert.Equal(t, "72469", st.Name)
	})

	t.Run("returns the existing station untouched", func(t *testing.T) {
		_, err := s.UpsertStations(ctx, []domain.Station{{ID: "72456", Name: "Topeka", UpdatedAt: baseTime}})
		require.NoError(t, err)

		st, err := s.EnsureStation(ctx, "72456", "something else")
		require.NoError(t, err)
		assert.Equal(t, "Topeka", st.Name, "ensure must not overwrite an existing row")
	})
}

func TestUpsertSounding(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t)

	_, err := s.EnsureStation(ctx, "72469", "Denver")
	require.NoError(t, err)

	capturedAt := baseTime

	t.Run("same key twice keeps one row with the second payload", func(t *testing.T) {
		id1, err := s.UpsertSounding(ctx, "72469", "Denver", capturedAt, "payload one")
		require.NoError(t, err)

		clock.Advance(10 * time.Minute)
		id2, err := s.UpsertSounding(ctx, "72469", "Denver/Stapleton", capturedAt, "payload two")
		require.NoError(t, err)
		assert.Equal(t, id1, id2, "re-fetch of the same instant must reuse the row")

		n, err := s.CountSoundings(ctx, domain.SoundingFilter{})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		rec, err := s.GetSounding(ctx, id1)
		require.NoError(t, err)
		assert.Equal(t, "payload two", rec.Payload)
		assert.Equal(t, "Denver/Stapleton", rec.StationName)
		assert.Equal(t, baseTime.Add(10*time.Minute), rec.DownloadedAt)
	})

	t.Run("captured_at is truncated to the minute", func(t *testing.T) {
		id, err := s.UpsertSounding(ctx, "72469", "Denver", baseTime.Add(time.Hour).Add(42*time.Second), "p")
		require.NoError(t, err)

		rec, err := s.GetSounding(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, baseTime.Add(time.Hour), rec.CapturedAt)
	})

	t.Run("unknown station violates the foreign key", func(t *testing.T) {
		_, err := s.UpsertSounding(ctx, "no-such-station", "", baseTime, "p")
		assert.Error(t, err, "constraint violations must surface immediately")
	})
}

func TestListSoundings(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, id := range []string{"72469", "72456"} {
		_, err := s.EnsureStation(ctx, id, "")
		require.NoError(t, err)
	}
	for i := 0; i < 5; i++ {
		_, err := s.UpsertSounding(ctx, "72469", "Denver", baseTime.Add(time.Duration(i)*12*time.Hour), "p")
		require.NoError(t, err)
	}
	_, err := s.UpsertSounding(ctx, "72456", "Topeka", baseTime, "p")
	require.NoError(t, err)

	t.Run("newest first", func(t *testing.T) {
		recs, err := s.ListSoundings(ctx, domain.SoundingFilter{})
		require.NoError(t, err)
		require.Len(t, recs, 6)
		for i := 1; i < len(recs); i++ {
			assert.False(t, recs[i].CapturedAt.After(recs[i-1].CapturedAt))
		}
	})

	t.Run("station filter", func(t *testing.T) {
		recs, err := s.ListSoundings(ctx, domain.SoundingFilter{StationIDs: []string{"72456"}})
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.Equal(t, "72456", recs[0].StationID)
	})

	t.Run("time range filter", func(t *testing.T) {
		start := baseTime.Add(12 * time.Hour)
		end := baseTime.Add(36 * time.Hour)
		recs, err := s.ListSoundings(ctx, domain.SoundingFilter{Start: &start, End: &end})
		require.NoError(t, err)
		assert.Len(t, recs, 3)

		n, err := s.CountSoundings(ctx, domain.SoundingFilter{Start: &start, End: &end})
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("limit and offset", func(t *testing.T) {
		page1, err := s.ListSoundings(ctx, domain.SoundingFilter{StationIDs: []string{"72469"}, Limit: 2})
		require.NoError(t, err)
		page2, err := s.ListSoundings(ctx, domain.SoundingFilter{StationIDs: []string{"72469"}, Limit: 2, Offset: 2})
		require.NoError(t, err)

		require.Len(t, page1, 2)
		require.Len(t, page2, 2)
		assert.NotEqual(t, page1[0].ID, page2[0].ID)
	})
}

func TestSearchStations(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	_, err := s.UpsertStations(ctx, []domain.Station{
		{ID: "72469", Name: "Denver, CO", UpdatedAt: baseTime},
		{ID: "72456", Name: "Topeka, KS", UpdatedAt: baseTime},
		{ID: "70026", Name: "Barrow, AK", UpdatedAt: baseTime},
	})
	require.NoError(t, err)

	t.Run("matches name case-insensitively", func(t *testing.T) {
		got, err := s.SearchStations(ctx, "DENVER", 10)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "72469", got[0].ID)
	})

	t.Run("matches id substring", func(t *testing.T) {
		got, err := s.SearchStations(ctx, "724", 10)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("respects the limit", func(t *testing.T) {
		got, err := s.SearchStations(ctx, "7", 2)
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})
}

func TestDeleteStationCascades(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, id := range []string{"72469", "72456"} {
		_, err := s.EnsureStation(ctx, id, "")
		require.NoError(t, err)
		_, err = s.UpsertSounding(ctx, id, "", baseTime, "p")
		require.NoError(t, err)
	}

	require.NoError(t, s.DeleteStation(ctx, "72469"))

	_, err := s.GetStation(ctx, "72469")
	assert.ErrorIs(t, err, store.ErrNotFound)

	recs, err := s.ListSoundings(ctx, domain.SoundingFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1, "cascade must only remove the deleted station's soundings")
	assert.Equal(t, "72456", recs[0].StationID)
}

func TestGetSoundingNotFound(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.GetSounding(context.Background(), 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

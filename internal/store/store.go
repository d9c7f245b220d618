package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mattn/go-sqlite3"

	"github.com/upperair/soundings/internal/domain"
	"github.com/upperair/soundings/internal/observability"
)

//go:embed sql/schema.sql
var schemaSQL string

// ErrNotFound is returned by point lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Write attempts under lock contention before giving up. The UI read path
// shares the database with the session writer, so transient busy errors are
// expected and retried with a linearly increasing delay.
const (
	maxAttempts    = 5
	retryBaseDelay = 100 * time.Millisecond
)

// Store persists stations and soundings in SQLite. All timestamps are
// stored as RFC 3339 UTC text; captured_at is truncated to the minute so
// re-fetches of the same instant land on the same unique key.
type Store struct {
	db      *sql.DB
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *observability.Metrics
}

// New creates a Store around an open database handle. A nil clock falls
// back to the wall clock.
func New(db *sql.DB, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{db: db, clock: clock, logger: logger, metrics: metrics}
}

// EnsureSchema applies the schema idempotently. Run once before first use.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertStations inserts or refreshes catalog entries by id, overwriting
// name, coordinates, source, and updated_at on conflict. Returns the number
// of stations processed; empty input is a no-op.
func (s *Store) UpsertStations(ctx context.Context, stations []domain.Station) (int, error) {
	if len(stations) == 0 {
		return 0, nil
	}

	err := s.withRetry(ctx, "upsert stations", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback() //nolint:errcheck // no-op after commit

		const q = `INSERT INTO stations (id, name, lat, lon, src, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  name = excluded.name,
  lat = excluded.lat,
  lon = excluded.lon,
  src = excluded.src,
  updated_at = excluded.updated_at`

		for _, st := range stations {
			updatedAt := st.UpdatedAt
			if updatedAt.IsZero() {
				updatedAt = s.clock.Now()
			}
			if _, err := tx.ExecContext(ctx, q,
				st.ID, st.Name, st.Lat, st.Lon, nullableString(st.Src), fmtTime(updatedAt),
			); err != nil {
				return err
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	return len(stations), nil
}

// EnsureStation returns the station by id, creating a minimal placeholder
// (named after the id when name is empty) if none exists. Soundings carry a
// foreign key to stations, so one of these precedes the first upsert for an
// unknown station.
func (s *Store) EnsureStation(ctx context.Context, id, name string) (domain.Station, error) {
	existing, err := s.GetStation(ctx, id)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return domain.Station{}, err
	}

	if name == "" {
		name = id
	}
	st := domain.Station{ID: id, Name: name, UpdatedAt: s.clock.Now()}
	if _, err := s.UpsertStations(ctx, []domain.Station{st}); err != nil {
		return domain.Station{}, err
	}
	return st, nil
}

// UpsertSounding inserts a sounding, or on the (station_id, captured_at)
// unique key overwrites the payload, station name snapshot, and
// downloaded_at. Returns the row id, existing or new.
func (s *Store) UpsertSounding(ctx context.Context, stationID, stationName string, capturedAt time.Time, payload string) (int64, error) {
	const q = `INSERT INTO soundings (station_id, station_name, captured_at, downloaded_at, payload)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(station_id, captured_at) DO UPDATE SET
  payload = excluded.payload,
  station_name = excluded.station_name,
  downloaded_at = excluded.downloaded_at
RETURNING id`

	captured := capturedAt.UTC().Truncate(time.Minute)

	var id int64
	err := s.withRetry(ctx, "upsert sounding", func() error {
		return s.db.QueryRowContext(ctx, q,
			stationID, nullableString(stationName), fmtTime(captured), fmtTime(s.clock.Now()), payload,
		).Scan(&id)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetSounding returns one stored sounding by row id.
func (s *Store) GetSounding(ctx context.Context, id int64) (domain.SoundingRecord, error) {
	const q = `SELECT id, station_id, station_name, captured_at, downloaded_at, payload
FROM soundings WHERE id = ?`

	rec, err := scanSounding(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SoundingRecord{}, fmt.Errorf("sounding %d: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListSoundings returns stored soundings matching the filter, newest
// captured_at first.
func (s *Store) ListSoundings(ctx context.Context, f domain.SoundingFilter) ([]domain.SoundingRecord, error) {
	where, args := soundingFilterSQL(f)

	limit := f.Limit
	if limit <= 0 {
		limit = 200
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	q := `SELECT id, station_id, station_name, captured_at, downloaded_at, payload
FROM soundings` + where + ` ORDER BY captured_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list soundings: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []domain.SoundingRecord
	for rows.Next() {
		rec, err := scanSounding(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// CountSoundings returns the number of rows ListSoundings would match
// before limit/offset.
func (s *Store) CountSoundings(ctx context.Context, f domain.SoundingFilter) (int, error) {
	where, args := soundingFilterSQL(f)

	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM soundings`+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count soundings: %w", err)
	}
	return n, nil
}

// GetStation returns one station by id, or ErrNotFound.
func (s *Store) GetStation(ctx context.Context, id string) (domain.Station, error) {
	const q = `SELECT id, name, lat, lon, src, updated_at FROM stations WHERE id = ?`

	st, err := scanStation(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Station{}, fmt.Errorf("station %q: %w", id, ErrNotFound)
	}
	return st, err
}

// ListStations returns the full catalog ordered by id.
func (s *Store) ListStations(ctx context.Context) ([]domain.Station, error) {
	const q = `SELECT id, name, lat, lon, src, updated_at FROM stations ORDER BY id`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list stations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return collectStations(rows)
}

// SearchStations matches the substring case-insensitively against station
// id or name, ordered by name.
func (s *Store) SearchStations(ctx context.Context, query string, limit int) ([]domain.Station, error) {
	if limit <= 0 {
		limit = 50
	}
	pattern := "%" + strings.ToLower(query) + "%"

	const q = `SELECT id, name, lat, lon, src, updated_at FROM stations
WHERE LOWER(id) LIKE ? OR LOWER(name) LIKE ?
ORDER BY name LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, pattern, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search stations: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return collectStations(rows)
}

// DeleteStation removes a station; its soundings go with it via the
// cascade.
func (s *Store) DeleteStation(ctx context.Context, id string) error {
	return s.withRetry(ctx, "delete station", func() error {
		_, err := s.db.ExecContext(ctx, `DELETE FROM stations WHERE id = ?`, id)
		return err
	})
}

// withRetry runs fn, retrying only busy/locked failures with a linearly
// increasing delay. Any other failure propagates immediately.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = fn()
		if err == nil || !isBusy(err) {
			break
		}
		if attempt == maxAttempts {
			break
		}
		delay := time.Duration(attempt) * retryBaseDelay
		s.logger.Warn("database busy, retrying", "op", op, "attempt", attempt, "delay", delay)
		s.metrics.StoreBusyRetries.Inc()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(delay):
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// isBusy reports whether err is SQLite lock contention rather than a real
// failure.
func isBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSounding(r rowScanner) (domain.SoundingRecord, error) {
	var rec domain.SoundingRecord
	var name sql.NullString
	var captured, downloaded string
	if err := r.Scan(&rec.ID, &rec.StationID, &name, &captured, &downloaded, &rec.Payload); err != nil {
		return domain.SoundingRecord{}, err
	}
	rec.StationName = name.String

	var err error
	if rec.CapturedAt, err = parseTime(captured); err != nil {
		return domain.SoundingRecord{}, err
	}
	if rec.DownloadedAt, err = parseTime(downloaded); err != nil {
		return domain.SoundingRecord{}, err
	}
	return rec, nil
}

func scanStation(r rowScanner) (domain.Station, error) {
	var st domain.Station
	var lat, lon sql.NullFloat64
	var src sql.NullString
	var updated string
	if err := r.Scan(&st.ID, &st.Name, &lat, &lon, &src, &updated); err != nil {
		return domain.Station{}, err
	}
	if lat.Valid {
		st.Lat = &lat.Float64
	}
	if lon.Valid {
		st.Lon = &lon.Float64
	}
	st.Src = src.String

	var err error
	if st.UpdatedAt, err = parseTime(updated); err != nil {
		return domain.Station{}, err
	}
	return st, nil
}

func collectStations(rows *sql.Rows) ([]domain.Station, error) {
	var out []domain.Station
	for rows.Next() {
		st, err := scanStation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func soundingFilterSQL(f domain.SoundingFilter) (string, []any) {
	var conds []string
	var args []any
	if len(f.StationIDs) > 0 {
		conds = append(conds, "station_id IN (?"+strings.Repeat(",?", len(f.StationIDs)-1)+")")
		for _, id := range f.StationIDs {
			args = append(args, id)
		}
	}
	if f.Start != nil {
		conds = append(conds, "captured_at >= ?")
		args = append(args, fmtTime(*f.Start))
	}
	if f.End != nil {
		conds = append(conds, "captured_at <= ?")
		args = append(args, fmtTime(*f.End))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339Nano, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	return t, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

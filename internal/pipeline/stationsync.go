package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/upperair/soundings/internal/domain"
	"github.com/upperair/soundings/internal/observability"
)

// CatalogFetcher retrieves the station catalog valid at an instant.
type CatalogFetcher interface {
	FetchStations(ctx context.Context, at time.Time) ([]domain.Station, error)
}

// CatalogStore is the slice of the store that station sync touches.
type CatalogStore interface {
	UpsertStations(ctx context.Context, stations []domain.Station) (int, error)
	ListStations(ctx context.Context) ([]domain.Station, error)
}

// StationSync refreshes the local station catalog from the remote endpoint.
type StationSync struct {
	fetcher CatalogFetcher
	store   CatalogStore
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStationSync wires a catalog fetcher to the store.
func NewStationSync(fetcher CatalogFetcher, store CatalogStore, logger *slog.Logger, metrics *observability.Metrics) *StationSync {
	return &StationSync{fetcher: fetcher, store: store, logger: logger, metrics: metrics}
}

// Sync fetches the catalog for the given instant, upserts it, and returns
// the catalog re-read from the store. Returning the read-back rather than
// the network response means callers always see what is durably stored.
func (s *StationSync) Sync(ctx context.Context, at time.Time) ([]domain.Station, error) {
	stations, err := s.fetcher.FetchStations(ctx, at)
	if err != nil {
		return nil, fmt.Errorf("fetch station catalog: %w", err)
	}
	s.logger.Info("station catalog fetched", "stations", len(stations))

	n, err := s.store.UpsertStations(ctx, stations)
	if err != nil {
		return nil, fmt.Errorf("store station catalog: %w", err)
	}
	s.metrics.StationsSynced.Add(float64(n))

	stored, err := s.store.ListStations(ctx)
	if err != nil {
		return nil, fmt.Errorf("read back station catalog: %w", err)
	}
	return stored, nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/upperair/soundings/internal/adapter/http"
	kafkaadapter "github.com/upperair/soundings/internal/adapter/kafka"
	"github.com/upperair/soundings/internal/adapter/uwyo"
	"github.com/upperair/soundings/internal/config"
	"github.com/upperair/soundings/internal/domain"
	"github.com/upperair/soundings/internal/observability"
	"github.com/upperair/soundings/internal/pipeline"
	"github.com/upperair/soundings/internal/store"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("soundings", flag.ContinueOnError)
	var (
		station      = fs.String("station", "", "station identifier to fetch, e.g. 72469")
		from         = fs.String("from", "", "first observation instant (2006-01-02T15 or 2006-01-02)")
		to           = fs.String("to", "", "last observation instant, inclusive")
		stepHours    = fs.Int("step", 12, "hours between observation instants")
		syncStations = fs.Bool("sync-stations", false, "refresh the station catalog before fetching")
	)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	if *station == "" && !*syncStations {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -station or -sync-stations")
		fs.Usage()
		return 2
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "path", cfg.DBPath, "error", err)
		return 1
	}
	defer db.Close() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.New(db, nil, logger, metrics)
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("ensure schema", "error", err)
		return 1
	}

	clientOpts := []uwyo.Option{}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, uwyo.WithBaseURL(cfg.BaseURL))
	}
	if cfg.StationsURL != "" {
		clientOpts = append(clientOpts, uwyo.WithStationsURL(cfg.StationsURL))
	}
	if cfg.OutputDir != "" {
		clientOpts = append(clientOpts, uwyo.WithOutputDir(cfg.OutputDir))
	}
	client := uwyo.NewClient(logger, clientOpts...)

	if *syncStations {
		sync := pipeline.NewStationSync(client, st, logger, metrics)
		stations, err := sync.Sync(ctx, domain.Now())
		if err != nil {
			logger.Error("station sync failed", "error", err)
			return 1
		}
		logger.Info("station catalog refreshed", "stations", len(stations))
	}

	if *station == "" {
		return 0
	}

	instants, err := parseInstants(*from, *to, *stepHours)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return 2
	}

	// Publishing stored-sounding events is feature-flagged via KAFKA_ENABLED.
	var publisher pipeline.EventPublisher
	if cfg.KafkaEnabled {
		p := kafkaadapter.NewPublisher(cfg, logger)
		defer p.Close() //nolint:errcheck
		publisher = p
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	}

	known, err := st.GetStation(ctx, *station)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		logger.Error("look up station", "station", *station, "error", err)
		return 1
	}

	session, err := pipeline.NewSession(pipeline.SessionConfig{
		StationID:   *station,
		Station:     known,
		Instants:    instants,
		Concurrency: cfg.Concurrency,
		OutputDir:   cfg.OutputDir,
	}, client, st, publisher, logger, metrics)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	// SIGINT/SIGTERM requests a cooperative stop; fetched results so far are
	// still persisted.
	go func() {
		<-ctx.Done()
		session.Cancel()
	}()

	if cfg.HTTPAddr != "" {
		srv := httpadapter.NewServer(cfg.HTTPAddr, session, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown error", "error", err)
			}
		}()
	}

	summary := session.Run(context.Background())
	logger.Info("fetch run finished",
		"state", summary.State.String(),
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"no_data", summary.NoData,
		"failed", summary.Failed,
		"persisted", summary.Persisted,
	)
	for _, e := range summary.Errors {
		logger.Warn("fetch error", "detail", e)
	}
	if summary.State == pipeline.StateFailed {
		if summary.Err != nil {
			logger.Error("run aborted", "error", summary.Err)
		}
		return 1
	}
	return 0
}

func parseInstants(from, to string, stepHours int) ([]time.Time, error) {
	if from == "" || to == "" {
		return nil, errors.New("-from and -to are required when fetching")
	}
	start, err := parseInstant(from)
	if err != nil {
		return nil, fmt.Errorf("invalid -from: %w", err)
	}
	end, err := parseInstant(to)
	if err != nil {
		return nil, fmt.Errorf("invalid -to: %w", err)
	}
	return domain.BuildInstants(start, end, stepHours)
}

func parseInstant(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

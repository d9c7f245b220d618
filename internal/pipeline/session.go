package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/upperair/soundings/internal/adapter/uwyo"
	"github.com/upperair/soundings/internal/domain"
	"github.com/upperair/soundings/internal/observability"
	"github.com/upperair/soundings/internal/sounding"
)

// State is the lifecycle of a fetch session.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SoundingFetcher retrieves one sounding for one (station, instant) pair.
type SoundingFetcher interface {
	FetchSounding(ctx context.Context, stationID string, at time.Time) (uwyo.Result, error)
}

// SessionStore is the slice of the store a session writes through.
type SessionStore interface {
	EnsureStation(ctx context.Context, id, name string) (domain.Station, error)
	UpsertSounding(ctx context.Context, stationID, stationName string, capturedAt time.Time, payload string) (int64, error)
}

// EventPublisher receives a notification per persisted sounding. Pass nil
// to disable publishing.
type EventPublisher interface {
	PublishStored(ctx context.Context, ev StoredEvent) error
}

// StoredEvent describes one persisted sounding for downstream consumers.
type StoredEvent struct {
	StationID   string    `json:"station_id"`
	StationName string    `json:"station_name,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
	Rows        int       `json:"rows"`
	PWVmm       *float64  `json:"pwv_mm,omitempty"`
}

// SessionConfig describes one fetch run.
type SessionConfig struct {
	StationID   string
	Station     domain.Station // already-resolved entity, name fallback
	Instants    []time.Time
	Concurrency int
	OutputDir   string // informational only; the fetcher owns file writes

	// OnProgress is invoked after every task completion with the count of
	// completed tasks and the total. Optional.
	OnProgress func(done, total int)
}

// Summary is the user-visible result of a finished session.
type Summary struct {
	State     State
	Total     int
	Succeeded int
	NoData    int
	Failed    int
	Persisted int
	Errors    []string // the last few per-item failure messages, verbatim
	Err       error    // the fatal transport error when State is StateFailed
}

// Session drives a bounded set of concurrent sounding fetches and persists
// the successes in one batch at the end. One Session runs once.
type Session struct {
	cfg       SessionConfig
	fetcher   SoundingFetcher
	store     SessionStore
	publisher EventPublisher
	logger    *slog.Logger
	metrics   *observability.Metrics

	state     atomic.Int32
	cancelled atomic.Bool
	cancelRun context.CancelFunc
	cancelMu  sync.Mutex
}

// NewSession validates the config and prepares a run.
func NewSession(cfg SessionConfig, fetcher SoundingFetcher, store SessionStore, publisher EventPublisher, logger *slog.Logger, metrics *observability.Metrics) (*Session, error) {
	if cfg.StationID == "" {
		return nil, errors.New("station id is required")
	}
	if len(cfg.Instants) == 0 {
		return nil, errors.New("no instants to fetch")
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Session{
		cfg:       cfg,
		fetcher:   fetcher,
		store:     store,
		publisher: publisher,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// CheckReadiness satisfies the ops server: the process is ready once the
// session has left Idle.
func (s *Session) CheckReadiness(_ context.Context) error {
	if s.State() == StateIdle {
		return errors.New("fetch session has not started yet")
	}
	return nil
}

// Cancel requests cooperative cancellation. In-flight fetches stop at their
// next check point; queued instants never start. Safe before or during Run.
func (s *Session) Cancel() {
	s.cancelled.Store(true)
	s.cancelMu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	s.cancelMu.Unlock()
}

// outcomeKind classifies one task completion.
type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeNoData
	outcomeItemError
	outcomeTransportError
	outcomeCancelled
)

type taskOutcome struct {
	kind outcomeKind
	at   time.Time
	res  uwyo.Result
	err  error
}

// fetched pairs a successful result with its target instant for the
// persistence batch.
type fetched struct {
	at  time.Time
	res uwyo.Result
}

// Run executes the session and blocks until it reaches a terminal state.
// Successful results accumulated before a cancel or abort are still
// persisted.
func (s *Session) Run(ctx context.Context) Summary {
	start := time.Now()
	s.state.Store(int32(StateRunning))
	s.metrics.SessionRunning.Set(1)
	defer s.metrics.SessionRunning.Set(0)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancelMu.Lock()
	s.cancelRun = cancel
	s.cancelMu.Unlock()
	defer cancel()

	if s.cancelled.Load() {
		// Cancelled before the first task started.
		cancel()
	}

	total := len(s.cfg.Instants)
	s.logger.Info("fetch session started",
		"station", s.cfg.StationID,
		"instants", total,
		"concurrency", s.cfg.Concurrency,
	)

	summary := Summary{Total: total}
	results := s.collect(runCtx, &summary)

	switch {
	case summary.Err != nil:
		s.state.Store(int32(StateFailed))
	case s.cancelled.Load() || ctx.Err() != nil:
		s.state.Store(int32(StateCancelled))
	default:
		s.state.Store(int32(StateCompleted))
	}
	summary.State = s.State()

	// Persistence must survive the cancelled run context.
	persistCtx := context.WithoutCancel(ctx)
	s.persist(persistCtx, results, &summary)

	s.metrics.SessionDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("fetch session finished",
		"state", summary.State.String(),
		"succeeded", summary.Succeeded,
		"no_data", summary.NoData,
		"failed", summary.Failed,
		"persisted", summary.Persisted,
	)
	return summary
}

// collect fans the instants out over the bounded worker pool and folds the
// completions into the summary. It returns the successful fetches in
// completion order.
func (s *Session) collect(runCtx context.Context, summary *Summary) []fetched {
	instantCh := make(chan time.Time)
	outcomeCh := make(chan taskOutcome)

	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.worker(runCtx, instantCh, outcomeCh)
		}()
	}

	go func() {
		defer close(instantCh)
		for _, at := range s.cfg.Instants {
			select {
			case instantCh <- at:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomeCh)
	}()

	var results []fetched
	done := 0
	for oc := range outcomeCh {
		if oc.kind == outcomeCancelled {
			continue
		}

		done++
		summary.reportProgress(s.cfg.OnProgress, done)

		switch oc.kind {
		case outcomeSuccess:
			summary.Succeeded++
			s.metrics.FetchOutcomes.WithLabelValues("success").Inc()
			results = append(results, fetched{at: oc.at, res: oc.res})
		case outcomeNoData:
			summary.NoData++
			s.metrics.FetchOutcomes.WithLabelValues("no_data").Inc()
			s.logger.Info("no data for instant", "station", s.cfg.StationID, "instant", oc.at)
		case outcomeItemError:
			summary.recordError(fmt.Sprintf("%s: %v", oc.at.Format("2006-01-02 15:04"), oc.err))
			s.metrics.FetchOutcomes.WithLabelValues("failed").Inc()
			s.logger.Warn("fetch failed", "station", s.cfg.StationID, "instant", oc.at, "error", oc.err)
		case outcomeTransportError:
			summary.Failed++
			s.metrics.FetchOutcomes.WithLabelValues("failed").Inc()
			if summary.Err == nil {
				summary.Err = oc.err
			}
			s.logger.Error("transport failure, aborting session",
				"station", s.cfg.StationID, "instant", oc.at, "error", oc.err)
			// Stop handing out work; in-flight tasks wind down on their
			// own cancellation checks.
			s.cancelled.Store(true)
			s.cancelMu.Lock()
			s.cancelRun()
			s.cancelMu.Unlock()
		}
	}
	return results
}

// worker fetches instants until the channel drains or the run is
// cancelled. Cancellation is polled before starting network I/O and again
// after the response, matching the session's cooperative contract.
func (s *Session) worker(runCtx context.Context, instants <-chan time.Time, outcomes chan<- taskOutcome) {
	for at := range instants {
		if s.cancelled.Load() || runCtx.Err() != nil {
			outcomes <- taskOutcome{kind: outcomeCancelled, at: at}
			continue
		}

		start := time.Now()
		res, err := s.fetcher.FetchSounding(runCtx, s.cfg.StationID, at)
		s.metrics.FetchDuration.Observe(time.Since(start).Seconds())

		if s.cancelled.Load() {
			outcomes <- taskOutcome{kind: outcomeCancelled, at: at}
			continue
		}

		oc := classify(at, res, err, runCtx)
		outcomes <- oc
		if oc.kind == outcomeTransportError {
			// The whole run is aborting; this worker has nothing useful
			// left to do.
			return
		}
	}
}

// classify maps a fetch result onto the session's error taxonomy:
// connection-layer failures abort the whole run, everything else is a
// per-item outcome. That asymmetry is deliberate.
func classify(at time.Time, res uwyo.Result, err error, runCtx context.Context) taskOutcome {
	switch {
	case err == nil:
		return taskOutcome{kind: outcomeSuccess, at: at, res: res}
	case errors.Is(err, uwyo.ErrNoData):
		return taskOutcome{kind: outcomeNoData, at: at}
	case errors.Is(err, context.Canceled) || runCtx.Err() != nil:
		return taskOutcome{kind: outcomeCancelled, at: at}
	case uwyo.IsTransport(err):
		return taskOutcome{kind: outcomeTransportError, at: at, err: err}
	default:
		return taskOutcome{kind: outcomeItemError, at: at, err: err}
	}
}

// persist writes the accumulated results in one batch: the station is
// ensured once, then one upsert per sounding. Store failures are recorded
// per item; they do not discard the rest of the batch.
func (s *Session) persist(ctx context.Context, results []fetched, summary *Summary) {
	if len(results) == 0 {
		return
	}

	stationName := s.cfg.Station.Name
	for _, f := range results {
		if f.res.StationName != "" {
			stationName = f.res.StationName
			break
		}
	}

	if _, err := s.store.EnsureStation(ctx, s.cfg.StationID, stationName); err != nil {
		summary.recordError(fmt.Sprintf("ensure station %s: %v", s.cfg.StationID, err))
		return
	}

	for _, f := range results {
		name := f.res.StationName
		if name == "" {
			name = stationName
		}
		if _, err := s.store.UpsertSounding(ctx, s.cfg.StationID, name, f.at, f.res.Payload); err != nil {
			summary.recordError(fmt.Sprintf("%s: store: %v", f.at.Format("2006-01-02 15:04"), err))
			continue
		}
		summary.Persisted++
		s.metrics.SoundingsPersisted.Inc()
		s.publishStored(ctx, name, f)
	}
}

func (s *Session) publishStored(ctx context.Context, stationName string, f fetched) {
	if s.publisher == nil {
		return
	}
	ev := StoredEvent{
		StationID:   s.cfg.StationID,
		StationName: stationName,
		CapturedAt:  f.at.UTC().Truncate(time.Minute),
		Rows:        len(f.res.Table.Rows),
	}
	if pwv, ok := sounding.IntegratePWV(f.res.Table, 0); ok {
		ev.PWVmm = &pwv
	}
	if err := s.publisher.PublishStored(ctx, ev); err != nil {
		// Publishing is best-effort; the stored row is already durable.
		s.metrics.PublishErrors.Inc()
		s.logger.Warn("publish stored event failed", "station", ev.StationID, "instant", ev.CapturedAt, "error", err)
		return
	}
	s.metrics.EventsPublished.Inc()
}

// maxReportedErrors bounds the verbatim error list shown in the summary.
const maxReportedErrors = 3

func (m *Summary) recordError(msg string) {
	m.Failed++
	m.Errors = append(m.Errors, msg)
	if len(m.Errors) > maxReportedErrors {
		m.Errors = m.Errors[len(m.Errors)-maxReportedErrors:]
	}
}

func (m *Summary) reportProgress(cb func(done, total int), done int) {
	if cb != nil {
		cb(done, m.Total)
	}
}

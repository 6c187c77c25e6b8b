package reaper

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpalmerr/couponrelay/internal/clock"
	"github.com/jpalmerr/couponrelay/internal/store"
	"github.com/jpalmerr/couponrelay/internal/telemetry"
)

const (
	// DefaultInterval is how often the stores are swept.
	DefaultInterval = time.Hour

	// DefaultMaxAge is how long an entry may wait before it is evicted.
	DefaultMaxAge = 30 * time.Minute
)

var (
	ErrNilStore        = errors.New("reaper needs both stores")
	ErrInvalidInterval = errors.New("sweep interval must be positive")
	ErrInvalidMaxAge   = errors.New("eviction age must be positive")
)

// Config holds the settings of a [Reaper].
type Config struct {
	Results     store.ResultStore
	Connections store.ConnectionStore

	// Interval between sweeps. Defaults to [DefaultInterval].
	Interval time.Duration

	// MaxAge is the eviction threshold. Defaults to [DefaultMaxAge].
	MaxAge time.Duration

	// Clock supplies "now" for age calculations. Defaults to the system clock.
	Clock clock.Clock

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// Report summarizes one sweep.
type Report struct {
	// ConnectionsEvicted counts stale markers removed.
	ConnectionsEvicted int

	// ResultsEvicted counts buffered results removed, from either pass.
	ResultsEvicted int
}

// Reaper periodically evicts stale markers and results.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Reaper struct {
	results  store.ResultStore
	conns    store.ConnectionStore
	interval time.Duration
	maxAge   time.Duration
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	tracer   trace.Tracer

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a [Reaper]. It does nothing until [Reaper.Start] is called.
func New(cfg Config) (*Reaper, error) {
	if cfg.Results == nil || cfg.Connections == nil {
		return nil, ErrNilStore
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Interval < 0 {
		return nil, ErrInvalidInterval
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.MaxAge < 0 {
		return nil, ErrInvalidMaxAge
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Reaper{
		results:  cfg.Results,
		conns:    cfg.Connections,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		tracer:   otel.Tracer("github.com/jpalmerr/couponrelay/internal/reaper"),
	}, nil
}

// Start begins sweeping in a background goroutine, once per interval, until
// [Reaper.Stop] is called or ctx is cancelled.
//
// Start is idempotent. If Stop was called before Start, Start is a no-op.
func (r *Reaper) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				r.Sweep(runCtx)
			}
		}
	}()
}

// Stop halts the sweep loop and waits for an in-progress sweep to finish.
//
// Stop is idempotent and safe to call before Start.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		if r.cancel != nil {
			r.cancel()
		}
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// Sweep runs both eviction passes once against the clock's current time.
//
// Pass one treats connection markers older than the threshold as abandoned:
// the marker and any result buffered for the same id are dropped. Pass two
// drops results older than the threshold that nobody picked up. An entry is
// only evicted if it is strictly older than the threshold, and only if it has
// not been replaced since the scan saw it.
func (r *Reaper) Sweep(ctx context.Context) Report {
	_, span := r.tracer.Start(ctx, "Reaper.Sweep")
	defer span.End()

	now := r.clock.Now()
	cutoff := now.Add(-r.maxAge)
	var report Report

	for _, marker := range r.conns.FindOlderThan(cutoff) {
		connectionID := marker.ConnectionID
		if !r.conns.RemoveIf(marker.RequestID, func(current store.ConnectionMarker) bool {
			return current.ConnectionID == connectionID
		}) {
			// replaced by a newer registration; its result belongs to that one
			continue
		}
		report.ConnectionsEvicted++
		if _, ok := r.results.Take(marker.RequestID); ok {
			report.ResultsEvicted++
		}
	}

	for _, result := range r.results.FindOlderThan(cutoff) {
		issuedAt := result.IssuedAt
		if r.results.RemoveIf(result.RequestID, func(current store.PendingResult) bool {
			return current.IssuedAt.Equal(issuedAt)
		}) {
			report.ResultsEvicted++
		}
	}

	r.metrics.Evicted(telemetry.StoreConnections, report.ConnectionsEvicted)
	r.metrics.Evicted(telemetry.StoreResults, report.ResultsEvicted)
	span.SetAttributes(
		attribute.Int("reaper.connections_evicted", report.ConnectionsEvicted),
		attribute.Int("reaper.results_evicted", report.ResultsEvicted),
	)

	if report.ConnectionsEvicted > 0 || report.ResultsEvicted > 0 {
		r.logger.Info("stale entries evicted",
			"connections", report.ConnectionsEvicted,
			"results", report.ResultsEvicted,
			"max_age", r.maxAge.String(),
		)
	} else {
		r.logger.Debug("sweep found nothing to evict")
	}
	return report
}

package couponrelay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/couponrelay/internal/clock"
	"github.com/jpalmerr/couponrelay/internal/delivery"
	"github.com/jpalmerr/couponrelay/internal/push"
	"github.com/jpalmerr/couponrelay/internal/reaper"
	"github.com/jpalmerr/couponrelay/internal/server"
	"github.com/jpalmerr/couponrelay/internal/store"
	"github.com/jpalmerr/couponrelay/internal/telemetry"
)

const (
	defaultPort         = 8080
	defaultIssuePrefix  = "give-result/"
	defaultRedeemPrefix = "use-result/"
)

// Relay is the main orchestrator for result delivery.
//
// Relay owns the result and connection stores, the delivery coordinator, the
// eviction sweep, and the HTTP server. It is created using [New] with
// functional options and started with [Relay.Start].
//
// The typical lifecycle is:
//
//	relay, err := couponrelay.New(couponrelay.WithPort(8080))
//	if err != nil {
//	    slog.Error("failed to create relay", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	relay.Start(ctx) // blocks until context cancelled
//
// The in-process methods ([Relay.Submit], [Relay.RegisterConnection],
// [Relay.Subscribe]) work whether or not the server is running.
type Relay struct {
	port                int
	sweepInterval       time.Duration
	evictionAge         time.Duration
	releaseOnDisconnect bool
	streamKeepAlive     time.Duration
	clock               Clock
	logger              *slog.Logger

	results     *store.MemoryResultStore
	conns       *store.MemoryConnectionStore
	hub         *push.Hub
	webhook     *push.Webhook
	metrics     *telemetry.Metrics
	coordinator *delivery.Coordinator
	reaper      *reaper.Reaper
}

// New creates a new [Relay] instance with the given options.
//
// All options have defaults:
//   - Port: 8080
//   - Destination prefixes: "give-result/" and "use-result/"
//   - Sweep interval: 1 hour
//   - Eviction age: 30 minutes
//   - Disconnect release: enabled
//   - Stream keep-alive: 15 seconds
//
// Returns an error if any option is invalid or the two prefixes are equal.
func New(opts ...Option) (*Relay, error) {
	cfg := &relayConfig{
		port:                defaultPort,
		issuePrefix:         defaultIssuePrefix,
		redeemPrefix:        defaultRedeemPrefix,
		sweepInterval:       reaper.DefaultInterval,
		evictionAge:         reaper.DefaultMaxAge,
		releaseOnDisconnect: true,
		streamKeepAlive:     server.DefaultKeepAlive,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	var clk Clock = clock.System()
	if cfg.clock != nil {
		clk = cfg.clock
	}

	r := &Relay{
		port:                cfg.port,
		sweepInterval:       cfg.sweepInterval,
		evictionAge:         cfg.evictionAge,
		releaseOnDisconnect: cfg.releaseOnDisconnect,
		streamKeepAlive:     cfg.streamKeepAlive,
		clock:               clk,
		logger:              logger,
		results:             store.NewMemoryResultStore(),
		conns:               store.NewMemoryConnectionStore(),
		hub:                 push.NewHub(),
		metrics:             telemetry.NewMetrics(),
	}
	r.metrics.TrackStores(r.results.Len, r.conns.Len)

	transports := []delivery.Transport{r.hub}
	if cfg.webhook != nil {
		webhook, err := push.NewWebhook(push.WebhookConfig{
			URL:     cfg.webhook.url,
			Timeout: cfg.webhook.timeout,
			Headers: cfg.webhook.headers,
		}, logger, r.metrics)
		if err != nil {
			return nil, err
		}
		r.webhook = webhook
		transports = append(transports, webhook)
	}
	for _, t := range cfg.transports {
		transports = append(transports, t)
	}
	transport, err := push.NewMulti(transports...)
	if err != nil {
		return nil, err
	}

	r.coordinator, err = delivery.NewCoordinator(delivery.Config{
		Results:     r.results,
		Connections: r.conns,
		Transport:   transport,
		Destinations: delivery.Destinations{
			IssuePrefix:  cfg.issuePrefix,
			RedeemPrefix: cfg.redeemPrefix,
		},
		Clock:   clk,
		Logger:  logger,
		Metrics: r.metrics,
	})
	if err != nil {
		return nil, err
	}

	r.reaper, err = reaper.New(reaper.Config{
		Results:     r.results,
		Connections: r.conns,
		Interval:    cfg.sweepInterval,
		MaxAge:      cfg.evictionAge,
		Clock:       clk,
		Logger:      logger,
		Metrics:     r.metrics,
	})
	if err != nil {
		return nil, err
	}

	return r, nil
}

// Start begins sweeping stale entries and serving HTTP.
//
// Start is a blocking call that runs until the provided context is cancelled.
// On return the sweep has stopped and in-flight webhook forwards have
// finished.
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server fails
// to start.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("couponrelay starting",
		"port", r.port,
		"sweep_interval", r.sweepInterval.String(),
		"eviction_age", r.evictionAge.String(),
	)

	// check if context already cancelled
	if ctx.Err() != nil {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)

	httpServer := server.NewServer(server.Config{
		Port:                r.port,
		Relay:               r.coordinator,
		Streams:             r.hub,
		Metrics:             r.metrics.Handler(),
		Clock:               r.clock,
		KeepAlive:           r.streamKeepAlive,
		ReleaseOnDisconnect: r.releaseOnDisconnect,
		Logger:              r.logger,
	})
	if err := httpServer.Start(gctx); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	r.logger.Info("relay listening", "url", fmt.Sprintf("http://localhost:%d", r.port))

	g.Go(func() error {
		r.reaper.Start(gctx)
		<-gctx.Done()
		r.reaper.Stop()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		r.webhook.Close()
		return nil
	})

	err := g.Wait()
	r.logger.Info("couponrelay stopped")
	return err
}

// Submit accepts a backend result. It pushes the result if a client is
// connected for its request id and buffers it otherwise.
//
// Returns [ErrEmptyRequestID] or [ErrUnknownKind] for malformed input.
func (r *Relay) Submit(ctx context.Context, result Result) (Outcome, error) {
	return r.coordinator.Submit(ctx, result)
}

// RegisterConnection records that a client is connected for requestID and
// returns the connection id. A buffered result is pushed immediately.
func (r *Relay) RegisterConnection(ctx context.Context, requestID string) (string, error) {
	marker, err := r.coordinator.RegisterConnection(ctx, requestID)
	if err != nil {
		return "", err
	}
	return marker.ConnectionID, nil
}

// Disconnect forgets the connection for requestID. Results submitted later
// are buffered again.
func (r *Relay) Disconnect(requestID string) error {
	return r.coordinator.Disconnect(requestID)
}

// Subscribe returns a channel that receives results pushed for kind and
// requestID through the built-in hub, and a function that cancels the
// subscription.
//
// Subscribe does not register a connection; call [Relay.RegisterConnection]
// after subscribing so a buffered result is not missed.
func (r *Relay) Subscribe(kind Kind, requestID string) (<-chan Result, func()) {
	destination := r.coordinator.Destination(kind, requestID)
	ch := r.hub.Subscribe(destination)
	return ch, func() { r.hub.Unsubscribe(destination, ch) }
}

// Destination returns where results of kind for requestID are pushed.
func (r *Relay) Destination(kind Kind, requestID string) string {
	return r.coordinator.Destination(kind, requestID)
}

// Sweep runs one eviction pass immediately.
func (r *Relay) Sweep(ctx context.Context) SweepReport {
	report := r.reaper.Sweep(ctx)
	return SweepReport{
		ConnectionsEvicted: report.ConnectionsEvicted,
		ResultsEvicted:     report.ResultsEvicted,
	}
}

// PendingResults returns the number of buffered results.
func (r *Relay) PendingResults() int {
	return r.results.Len()
}

// LiveConnections returns the number of registered connections.
func (r *Relay) LiveConnections() int {
	return r.conns.Len()
}

// Port returns the configured HTTP port.
func (r *Relay) Port() int {
	return r.port
}

// SweepInterval returns the configured interval between eviction sweeps.
func (r *Relay) SweepInterval() time.Duration {
	return r.sweepInterval
}

// EvictionAge returns the configured eviction threshold.
func (r *Relay) EvictionAge() time.Duration {
	return r.evictionAge
}

package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jpalmerr/couponrelay/internal/clock"
	"github.com/jpalmerr/couponrelay/internal/store"
	"github.com/jpalmerr/couponrelay/internal/telemetry"
)

const tracerName = "github.com/jpalmerr/couponrelay/internal/delivery"

// Outcome reports what happened to a submitted result.
type Outcome int

const (
	// OutcomeBuffered means no client was connected; the result waits in the
	// result store.
	OutcomeBuffered Outcome = iota

	// OutcomeDelivered means a client was connected and the result has been
	// handed to the transport (by this call or a concurrent one).
	OutcomeDelivered
)

// String returns a lower-case outcome name for logs and spans.
func (o Outcome) String() string {
	switch o {
	case OutcomeBuffered:
		return "buffered"
	case OutcomeDelivered:
		return "delivered"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Config holds the collaborators of a [Coordinator].
type Config struct {
	Results      store.ResultStore
	Connections  store.ConnectionStore
	Transport    Transport
	Destinations Destinations

	// Clock stamps connection markers. Defaults to the system clock.
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *telemetry.Metrics
}

// Coordinator is the delivery decision engine. It is safe for concurrent use.
type Coordinator struct {
	results      store.ResultStore
	conns        store.ConnectionStore
	transport    Transport
	destinations Destinations
	clock        clock.Clock
	logger       *slog.Logger
	metrics      *telemetry.Metrics
	tracer       trace.Tracer
}

// NewCoordinator creates a [Coordinator] from cfg.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Results == nil {
		return nil, ErrNilResultStore
	}
	if cfg.Connections == nil {
		return nil, ErrNilConnectionStore
	}
	if cfg.Transport == nil {
		return nil, ErrNilTransport
	}
	if err := cfg.Destinations.Validate(); err != nil {
		return nil, err
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		results:      cfg.Results,
		conns:        cfg.Connections,
		transport:    cfg.Transport,
		destinations: cfg.Destinations,
		clock:        clk,
		logger:       logger,
		metrics:      cfg.Metrics,
		tracer:       otel.Tracer(tracerName),
	}, nil
}

// Destination returns where a result of kind for requestID is pushed.
func (c *Coordinator) Destination(kind store.Kind, requestID string) string {
	return c.destinations.For(kind, requestID)
}

// Submit accepts a backend result.
//
// If a client is connected for result.RequestID the result is pushed and both
// the marker and the result are cleared. Otherwise the result is buffered,
// replacing any earlier unsent result for the same id. A zero IssuedAt is
// stamped with the coordinator clock. Only malformed input produces an error.
func (c *Coordinator) Submit(ctx context.Context, result store.PendingResult) (Outcome, error) {
	if err := result.Validate(); err != nil {
		return OutcomeBuffered, err
	}
	if result.IssuedAt.IsZero() {
		result.IssuedAt = c.clock.Now()
	}

	ctx, span := c.tracer.Start(ctx, "Coordinator.Submit", trace.WithAttributes(
		attribute.String("relay.request_id", result.RequestID),
		attribute.String("relay.kind", result.Kind.String()),
	))
	defer span.End()

	c.metrics.ResultSubmitted(result.Kind.String())
	c.results.Put(result)

	outcome := OutcomeBuffered
	if c.conns.Exists(result.RequestID) {
		// a failed claim means a concurrent registration already flushed it
		c.flush(ctx, result.RequestID, telemetry.TriggerSubmit)
		outcome = OutcomeDelivered
	} else {
		c.metrics.Buffered(result.Kind.String())
		c.logger.Debug("result buffered",
			"request_id", result.RequestID,
			"kind", result.Kind.String(),
		)
	}

	span.SetAttributes(attribute.String("relay.outcome", outcome.String()))
	return outcome, nil
}

// RegisterConnection records that a client is listening for requestID and
// flushes a buffered result if one is waiting.
//
// Re-registering overwrites the previous marker. The returned marker can be
// passed to [Coordinator.Release] when the connection goes away.
func (c *Coordinator) RegisterConnection(ctx context.Context, requestID string) (store.ConnectionMarker, error) {
	if strings.TrimSpace(requestID) == "" {
		return store.ConnectionMarker{}, store.ErrEmptyRequestID
	}

	ctx, span := c.tracer.Start(ctx, "Coordinator.RegisterConnection", trace.WithAttributes(
		attribute.String("relay.request_id", requestID),
	))
	defer span.End()

	marker := store.ConnectionMarker{
		RequestID:    requestID,
		ConnectionID: uuid.NewString(),
		ConnectedAt:  c.clock.Now(),
	}
	c.conns.Put(marker)
	c.metrics.ConnectionRegistered()

	flushed := false
	if c.results.Exists(requestID) {
		flushed = c.flush(ctx, requestID, telemetry.TriggerConnect)
	}

	span.SetAttributes(attribute.Bool("relay.flushed", flushed))
	c.logger.Info("connection registered",
		"request_id", requestID,
		"connection_id", marker.ConnectionID,
		"flushed", flushed,
	)
	return marker, nil
}

// Release removes marker if it is still the current registration for its
// request id. It reports whether a marker was removed. A marker already
// consumed by a delivery, evicted, or superseded by a newer registration is
// left alone.
func (c *Coordinator) Release(marker store.ConnectionMarker) bool {
	removed := c.conns.RemoveIf(marker.RequestID, func(current store.ConnectionMarker) bool {
		return current.ConnectionID == marker.ConnectionID
	})
	if removed {
		c.logger.Debug("connection released",
			"request_id", marker.RequestID,
			"connection_id", marker.ConnectionID,
		)
	}
	return removed
}

// Disconnect removes whatever marker is stored for requestID. It is used
// when an external gateway reports that its client went away.
func (c *Coordinator) Disconnect(requestID string) error {
	if strings.TrimSpace(requestID) == "" {
		return store.ErrEmptyRequestID
	}
	c.conns.Remove(requestID)
	c.logger.Debug("connection dropped", "request_id", requestID)
	return nil
}

// flush claims the buffered result for requestID, clears the marker, and
// pushes. It reports whether this call performed the push.
func (c *Coordinator) flush(ctx context.Context, requestID, trigger string) bool {
	result, ok := c.results.Take(requestID)
	if !ok {
		return false
	}
	c.conns.Remove(requestID)

	destination := c.destinations.For(result.Kind, result.RequestID)
	if err := c.safePush(ctx, destination, result); err != nil {
		c.metrics.PushFailed(c.transport.Name())
		c.logger.Warn("push failed",
			"request_id", requestID,
			"destination", destination,
			"transport", c.transport.Name(),
			"error", err.Error(),
		)
		trace.SpanFromContext(ctx).SetStatus(codes.Error, err.Error())
		return true
	}

	c.metrics.Delivered(result.Kind.String(), trigger)
	c.logger.Info("result delivered",
		"request_id", requestID,
		"kind", result.Kind.String(),
		"destination", destination,
		"trigger", trigger,
	)
	return true
}

// safePush calls the transport with panic recovery. A panicking transport is
// reported as a failed push carrying a correlation id; the stack trace is
// logged server-side.
func (c *Coordinator) safePush(ctx context.Context, destination string, result store.PendingResult) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			c.logger.Error("transport panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("transport panic (correlation_id: %s)", correlationID)
		}
	}()
	return c.transport.Push(ctx, destination, result)
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jpalmerr/couponrelay/internal/clock"
	"github.com/jpalmerr/couponrelay/internal/delivery"
	"github.com/jpalmerr/couponrelay/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// DefaultKeepAlive is the interval between SSE keep-alive comments.
	DefaultKeepAlive = 15 * time.Second

	// maxBodySize caps inbound JSON bodies.
	maxBodySize = 64 << 10
)

// Relay is the part of the delivery coordinator the server drives.
type Relay interface {
	Submit(ctx context.Context, result store.PendingResult) (delivery.Outcome, error)
	RegisterConnection(ctx context.Context, requestID string) (store.ConnectionMarker, error)
	Release(marker store.ConnectionMarker) bool
	Disconnect(requestID string) error
	Destination(kind store.Kind, requestID string) string
}

// Streams hands out subscriptions to pushed results.
type Streams interface {
	Subscribe(destination string) <-chan store.PendingResult
	Unsubscribe(destination string, ch <-chan store.PendingResult)
}

// Config holds the dependencies of a [Server].
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	Relay   Relay
	Streams Streams

	// Metrics serves /metrics when non-nil.
	Metrics http.Handler

	// Clock stamps results submitted without issuedAt.
	Clock clock.Clock

	// KeepAlive is the SSE keep-alive interval. Defaults to [DefaultKeepAlive].
	KeepAlive time.Duration

	// ReleaseOnDisconnect removes a stream's connection marker when the
	// client goes away before its result arrives.
	ReleaseOnDisconnect bool

	Logger *slog.Logger
}

// Server handles HTTP requests for the relay.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	port                int
	relay               Relay
	streams             Streams
	metrics             http.Handler
	clock               clock.Clock
	keepAlive           time.Duration
	releaseOnDisconnect bool
	logger              *slog.Logger
	httpServer          *http.Server
}

// NewServer creates a new HTTP [Server].
//
// The server is not started until [Server.Start] is called.
func NewServer(cfg Config) *Server {
	clk := cfg.Clock
	if clk == nil {
		clk = clock.System()
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		port:                cfg.Port,
		relay:               cfg.Relay,
		streams:             cfg.Streams,
		metrics:             cfg.Metrics,
		clock:               clk,
		keepAlive:           keepAlive,
		releaseOnDisconnect: cfg.ReleaseOnDisconnect,
		logger:              logger,
	}
}

// Handler returns the relay's routes. Relay routes are instrumented with
// OpenTelemetry and their spans are named after the route pattern.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	traced := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, otelhttp.NewHandler(h, pattern))
	}

	traced("POST /v1/coupon-messages", s.handleSubmit)
	traced("POST /v1/coupon-connections", s.handleRegister)
	traced("DELETE /v1/coupon-connections/{requestId}", s.handleDisconnect)
	traced("GET /v1/coupons/{kind}/results/{requestId}/stream", s.handleStream)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// which ends long-running SSE streams on shutdown.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// submitRequest is the result payload posted by the backend.
type submitRequest struct {
	Kind      string     `json:"kind"`
	RequestID string     `json:"requestId"`
	Success   bool       `json:"success"`
	Detail    *string    `json:"detail"`
	IssuedAt  *time.Time `json:"issuedAt"`
}

type submitResponse struct {
	Outcome string `json:"outcome"`
}

// handleSubmit accepts a backend result. The acknowledgment is written after
// the result has been pushed or buffered.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "malformed result payload")
		return
	}

	kind, err := store.ParseKind(req.Kind)
	if err != nil {
		writeError(w, s.logger, http.StatusBadRequest, err.Error())
		return
	}

	issuedAt := s.clock.Now()
	if req.IssuedAt != nil {
		issuedAt = *req.IssuedAt
	}

	outcome, err := s.relay.Submit(r.Context(), store.PendingResult{
		RequestID: strings.TrimSpace(req.RequestID),
		Kind:      kind,
		Success:   req.Success,
		Detail:    req.Detail,
		IssuedAt:  issuedAt,
	})
	if err != nil {
		writeError(w, s.logger, statusFor(err), err.Error())
		return
	}

	writeSuccess(w, s.logger, http.StatusCreated, submitResponse{Outcome: outcome.String()})
}

type registerRequest struct {
	RequestID string `json:"requestId"`
}

type registerResponse struct {
	ConnectionID string `json:"connectionId"`
}

// handleRegister records a connection held by an external gateway.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeError(w, s.logger, http.StatusBadRequest, "malformed connection payload")
		return
	}

	marker, err := s.relay.RegisterConnection(r.Context(), strings.TrimSpace(req.RequestID))
	if err != nil {
		writeError(w, s.logger, statusFor(err), err.Error())
		return
	}

	writeSuccess(w, s.logger, http.StatusAccepted, registerResponse{ConnectionID: marker.ConnectionID})
}

// handleDisconnect drops the connection marker for a request id.
func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.relay.Disconnect(r.PathValue("requestId")); err != nil {
		writeError(w, s.logger, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

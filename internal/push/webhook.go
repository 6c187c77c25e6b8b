package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/jpalmerr/couponrelay/internal/store"
	"github.com/jpalmerr/couponrelay/internal/telemetry"
)

const (
	maxResponseBodySize   = 64 << 10 // 64KB, only read for diagnostics
	defaultWebhookTimeout = 5 * time.Second
)

// connection pooling limits; every forward goes to the same gateway host
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 50
	defaultMaxConnsPerHost     = 50
	defaultIdleConnTimeout     = 60 * time.Second
)

// WebhookConfig configures a [Webhook].
type WebhookConfig struct {
	// URL is the gateway base URL. The destination is appended as a path.
	URL string

	// Timeout bounds each forward. Defaults to 5s.
	Timeout time.Duration

	// Headers are sent with every request (e.g. Authorization).
	Headers map[string]string
}

// Response holds the outcome of one forward made by [Webhook].
type Response struct {
	// StatusCode is zero if the request failed before a response arrived.
	StatusCode int

	// Body is the gateway's response body, limited to 64KB.
	Body []byte

	Latency time.Duration

	// Error is set when the request could not be completed.
	Error error
}

// Webhook forwards results to an external push gateway that owns the client
// sockets. Each push becomes POST <URL>/<destination> with the result as the
// JSON body.
//
// Forwards run in the background so the coordinator never waits on the
// network. Failures are logged and counted, never retried.
type Webhook struct {
	baseURL    string
	timeout    time.Duration
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *telemetry.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewWebhook creates a [Webhook].
//
// The client uses per-request timeouts via context rather than a global
// client timeout, and keeps a connection pool to the gateway.
func NewWebhook(cfg WebhookConfig, logger *slog.Logger, metrics *telemetry.Metrics) (*Webhook, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrWebhookURL, cfg.URL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	return &Webhook{
		baseURL: cfg.URL,
		timeout: timeout,
		headers: headers,
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				MaxConnsPerHost:     defaultMaxConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Name implements delivery.Transport.
func (w *Webhook) Name() string {
	return "webhook"
}

// Push schedules a forward of result to destination and returns immediately.
//
// The forward is detached from ctx cancellation (the inbound request that
// triggered it may finish first) but keeps its values for tracing.
func (w *Webhook) Push(ctx context.Context, destination string, result store.PendingResult) error {
	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	target, err := url.JoinPath(w.baseURL, destination)
	if err != nil {
		return fmt.Errorf("failed to build webhook url: %w", err)
	}

	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrClosed
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		resp := w.Forward(context.WithoutCancel(ctx), target, body)
		if resp.Error == nil && resp.StatusCode >= 300 {
			resp.Error = fmt.Errorf("gateway responded %d: %s", resp.StatusCode, bytes.TrimSpace(resp.Body))
		}
		if resp.Error != nil {
			w.metrics.PushFailed(w.Name())
			w.logger.Warn("webhook forward failed",
				"request_id", result.RequestID,
				"destination", destination,
				"latency_ms", resp.Latency.Milliseconds(),
				"error", resp.Error.Error(),
			)
			return
		}
		w.logger.Debug("webhook forward completed",
			"request_id", result.RequestID,
			"destination", destination,
			"status_code", resp.StatusCode,
			"latency_ms", resp.Latency.Milliseconds(),
		)
	}()
	return nil
}

// Forward performs one POST of body to target and returns a structured
// [Response]. Errors are captured in the Response rather than returned.
func (w *Webhook) Forward(ctx context.Context, target string, body []byte) Response {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.headers {
		req.Header.Set(key, value)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		Latency:    time.Since(start),
	}
}

// Close stops accepting pushes, waits for in-flight forwards, and closes
// idle connections. Safe to call multiple times.
func (w *Webhook) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	w.wg.Wait()

	if transport, ok := w.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

package couponrelay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/couponrelay/internal/clock"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collectingTransport records every push it receives.
type collectingTransport struct {
	mu     sync.Mutex
	pushed []string
}

func (c *collectingTransport) Name() string { return "collecting" }

func (c *collectingTransport) Push(_ context.Context, destination string, _ Result) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pushed = append(c.pushed, destination)
	return nil
}

func (c *collectingTransport) destinations() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.pushed...)
}

func newTestRelay(t *testing.T, opts ...Option) (*Relay, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	relay, err := New(append([]Option{WithLogger(testLogger()), WithClock(clk)}, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return relay, clk
}

func TestRelay_ResultThenConnect(t *testing.T) {
	extra := &collectingTransport{}
	relay, _ := newTestRelay(t, WithTransport(extra))

	outcome, err := relay.Submit(context.Background(), Result{RequestID: "abc", Kind: KindIssue, Success: true, IssuedAt: t0})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if outcome != Buffered {
		t.Errorf("Submit() outcome = %v, want %v", outcome, Buffered)
	}
	if relay.PendingResults() != 1 {
		t.Errorf("PendingResults() = %d, want 1", relay.PendingResults())
	}

	ch, cancel := relay.Subscribe(KindIssue, "abc")
	defer cancel()

	if _, err := relay.RegisterConnection(context.Background(), "abc"); err != nil {
		t.Fatalf("RegisterConnection() error = %v", err)
	}

	select {
	case got := <-ch:
		if got.RequestID != "abc" || !got.Success {
			t.Errorf("received %+v, want successful result for abc", got)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive result")
	}

	if got := extra.destinations(); len(got) != 1 || got[0] != "give-result/abc" {
		t.Errorf("extra transport destinations = %v, want [give-result/abc]", got)
	}
	if relay.PendingResults() != 0 || relay.LiveConnections() != 0 {
		t.Errorf("stores not empty: %d results, %d connections", relay.PendingResults(), relay.LiveConnections())
	}
}

func TestRelay_ConnectThenResult(t *testing.T) {
	relay, _ := newTestRelay(t)

	ch, cancel := relay.Subscribe(KindRedeem, "r1")
	defer cancel()

	connectionID, err := relay.RegisterConnection(context.Background(), "r1")
	if err != nil {
		t.Fatalf("RegisterConnection() error = %v", err)
	}
	if connectionID == "" {
		t.Error("RegisterConnection() returned empty connection id")
	}

	outcome, err := relay.Submit(context.Background(), Result{RequestID: "r1", Kind: KindRedeem, Success: true, IssuedAt: t0})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if outcome != Delivered {
		t.Errorf("Submit() outcome = %v, want %v", outcome, Delivered)
	}

	select {
	case got := <-ch:
		if got.Kind != KindRedeem {
			t.Errorf("received kind %v, want %v", got.Kind, KindRedeem)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive result")
	}
}

func TestRelay_SubmitRejectsMalformedInput(t *testing.T) {
	relay, _ := newTestRelay(t)

	_, err := relay.Submit(context.Background(), Result{RequestID: "", Kind: KindIssue})
	if !errors.Is(err, ErrEmptyRequestID) {
		t.Errorf("Submit() error = %v, want %v", err, ErrEmptyRequestID)
	}

	_, err = relay.Submit(context.Background(), Result{RequestID: "abc", Kind: "REFUND"})
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Submit() error = %v, want %v", err, ErrUnknownKind)
	}

	if relay.PendingResults() != 0 {
		t.Errorf("PendingResults() = %d, want 0", relay.PendingResults())
	}
}

func TestRelay_DisconnectBuffersLaterResults(t *testing.T) {
	relay, _ := newTestRelay(t)

	if _, err := relay.RegisterConnection(context.Background(), "abc"); err != nil {
		t.Fatalf("RegisterConnection() error = %v", err)
	}
	if err := relay.Disconnect("abc"); err != nil {
		t.Fatalf("Disconnect() error = %v", err)
	}

	outcome, err := relay.Submit(context.Background(), Result{RequestID: "abc", Kind: KindIssue, IssuedAt: t0})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if outcome != Buffered {
		t.Errorf("Submit() outcome = %v, want %v", outcome, Buffered)
	}
}

func TestRelay_SweepEvictsStaleEntries(t *testing.T) {
	relay, clk := newTestRelay(t)

	if _, err := relay.Submit(context.Background(), Result{RequestID: "old", Kind: KindIssue, IssuedAt: t0.Add(-31 * time.Minute)}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := relay.Submit(context.Background(), Result{RequestID: "young", Kind: KindIssue, IssuedAt: t0.Add(-29 * time.Minute)}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := relay.RegisterConnection(context.Background(), "waiting"); err != nil {
		t.Fatalf("RegisterConnection() error = %v", err)
	}

	clk.Advance(31 * time.Minute)
	report := relay.Sweep(context.Background())

	if report.ConnectionsEvicted != 1 {
		t.Errorf("ConnectionsEvicted = %d, want 1", report.ConnectionsEvicted)
	}
	if report.ResultsEvicted != 2 {
		t.Errorf("ResultsEvicted = %d, want 2", report.ResultsEvicted)
	}
	if relay.PendingResults() != 0 || relay.LiveConnections() != 0 {
		t.Errorf("stores not empty: %d results, %d connections", relay.PendingResults(), relay.LiveConnections())
	}
}

func TestRelay_SweepKeepsFreshResultWithoutIssuedAt(t *testing.T) {
	relay, clk := newTestRelay(t)

	if _, err := relay.Submit(context.Background(), Result{RequestID: "fresh", Kind: KindIssue}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	clk.Advance(time.Minute)
	report := relay.Sweep(context.Background())

	if report.ResultsEvicted != 0 {
		t.Errorf("ResultsEvicted = %d, want 0", report.ResultsEvicted)
	}
	if relay.PendingResults() != 1 {
		t.Errorf("PendingResults() = %d, want 1", relay.PendingResults())
	}

	clk.Advance(30 * time.Minute)
	if report := relay.Sweep(context.Background()); report.ResultsEvicted != 1 {
		t.Errorf("ResultsEvicted after eviction age = %d, want 1", report.ResultsEvicted)
	}
}

func TestRelay_WebhookForwardsPush(t *testing.T) {
	received := make(chan string, 1)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.URL.Path
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gateway.Close()

	relay, _ := newTestRelay(t, WithWebhook(gateway.URL, time.Second, nil))
	defer relay.webhook.Close()

	if _, err := relay.RegisterConnection(context.Background(), "abc"); err != nil {
		t.Fatalf("RegisterConnection() error = %v", err)
	}
	if _, err := relay.Submit(context.Background(), Result{RequestID: "abc", Kind: KindIssue, IssuedAt: t0}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	select {
	case path := <-received:
		if path != "/give-result/abc" {
			t.Errorf("gateway path = %q, want %q", path, "/give-result/abc")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not receive forwarded result")
	}
}

// TestStart_BlocksUntilContextCancelled verifies that Start blocks until the
// provided context is cancelled.
func TestStart_BlocksUntilContextCancelled(t *testing.T) {
	// use a high port to avoid conflicts
	relay, _ := newTestRelay(t, WithPort(19101))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- relay.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	select {
	case err := <-done:
		t.Fatalf("Start() returned early with error: %v", err)
	default:
		// expected: still blocking
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

// TestStart_ReturnsImmediatelyIfContextAlreadyCancelled verifies that Start
// returns without binding if the context is already cancelled.
func TestStart_ReturnsImmediatelyIfContextAlreadyCancelled(t *testing.T) {
	relay, _ := newTestRelay(t, WithPort(19102))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- relay.Start(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return for cancelled context")
	}
}

// TestStart_StreamsResultOverHTTP runs the relay on a real port and delivers
// a result to an SSE client.
func TestStart_StreamsResultOverHTTP(t *testing.T) {
	relay, _ := newTestRelay(t, WithPort(19103))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- relay.Start(ctx)
	}()

	base := "http://localhost:19103"
	waitForHealthy(t, base)

	if _, err := relay.Submit(context.Background(), Result{RequestID: "abc", Kind: KindIssue, Success: true, IssuedAt: t0}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	reqCtx, reqCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer reqCancel()
	req, _ := http.NewRequestWithContext(reqCtx, http.MethodGet, base+"/v1/coupons/issue/results/abc/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request failed: %v", err)
	}
	defer resp.Body.Close()

	var result Result
	scanner := bufio.NewScanner(resp.Body)
	var sawResult bool
	for scanner.Scan() {
		line := scanner.Text()
		if line == "event: result" {
			sawResult = true
			continue
		}
		if sawResult && strings.HasPrefix(line, "data: ") {
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &result); err != nil {
				t.Fatalf("failed to decode result: %v", err)
			}
			break
		}
	}
	if result.RequestID != "abc" {
		t.Errorf("streamed request id = %q, want %q", result.RequestID, "abc")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after context cancellation")
	}
}

func waitForHealthy(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("relay did not become healthy")
}

package push

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/couponrelay/internal/store"
	"github.com/jpalmerr/couponrelay/internal/telemetry"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type received struct {
	path   string
	auth   string
	result store.PendingResult
}

func newGateway(t *testing.T, status int) (*httptest.Server, <-chan received) {
	t.Helper()
	ch := make(chan received, 10)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var res store.PendingResult
		_ = json.NewDecoder(r.Body).Decode(&res)
		ch <- received{path: r.URL.Path, auth: r.Header.Get("Authorization"), result: res}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func TestNewWebhook_RejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://gateway", "not a url", "/relative"} {
		if _, err := NewWebhook(WebhookConfig{URL: u}, testLogger(), nil); !errors.Is(err, ErrWebhookURL) {
			t.Errorf("NewWebhook(%q) error = %v, want %v", u, err, ErrWebhookURL)
		}
	}
}

func TestNewWebhook_DefaultTimeout(t *testing.T) {
	wh, err := NewWebhook(WebhookConfig{URL: "http://gateway.local"}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}
	defer wh.Close()

	if wh.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want %v", wh.timeout, 5*time.Second)
	}
}

func TestWebhook_PushForwardsResult(t *testing.T) {
	gw, got := newGateway(t, http.StatusAccepted)

	wh, err := NewWebhook(WebhookConfig{
		URL:     gw.URL + "/push",
		Headers: map[string]string{"Authorization": "Bearer secret"},
	}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}
	defer wh.Close()

	result := store.PendingResult{RequestID: "abc", Kind: store.KindIssue, Success: true}
	if err := wh.Push(context.Background(), "give-result/abc", result); err != nil {
		t.Fatalf("Push() error = %v", err)
	}

	select {
	case r := <-got:
		if r.path != "/push/give-result/abc" {
			t.Errorf("path = %q, want %q", r.path, "/push/give-result/abc")
		}
		if r.auth != "Bearer secret" {
			t.Errorf("Authorization = %q, want %q", r.auth, "Bearer secret")
		}
		if r.result.RequestID != "abc" || !r.result.Success {
			t.Errorf("body = %+v, want request abc success", r.result)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not receive forward")
	}
}

func TestWebhook_PushDoesNotWaitForCancelledCaller(t *testing.T) {
	gw, got := newGateway(t, http.StatusOK)

	wh, err := NewWebhook(WebhookConfig{URL: gw.URL}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}
	defer wh.Close()

	ctx, cancel := context.WithCancel(context.Background())
	if err := wh.Push(ctx, "d/1", store.PendingResult{RequestID: "1"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	cancel()

	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("forward was cancelled together with the caller context")
	}
}

func TestWebhook_GatewayErrorIsCounted(t *testing.T) {
	gw, _ := newGateway(t, http.StatusBadGateway)
	metrics := telemetry.NewMetrics()

	wh, err := NewWebhook(WebhookConfig{URL: gw.URL}, testLogger(), metrics)
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}

	if err := wh.Push(context.Background(), "d/1", store.PendingResult{RequestID: "1"}); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	wh.Close() // waits for the forward

	families, err := metrics.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "couponrelay_push_failures_total" {
			found = f.GetMetric()[0].GetCounter().GetValue() == 1
		}
	}
	if !found {
		t.Error("push_failures_total{transport=webhook} should be 1")
	}
}

func TestWebhook_PushAfterClose(t *testing.T) {
	wh, err := NewWebhook(WebhookConfig{URL: "http://127.0.0.1:1"}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}
	wh.Close()
	wh.Close()

	if err := wh.Push(context.Background(), "d/1", store.PendingResult{RequestID: "1"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Push() after Close error = %v, want %v", err, ErrClosed)
	}
}

func TestWebhook_Forward_Timeout(t *testing.T) {
	var once sync.Once
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer once.Do(func() { close(release) })

	wh, err := NewWebhook(WebhookConfig{URL: srv.URL, Timeout: 50 * time.Millisecond}, testLogger(), nil)
	if err != nil {
		t.Fatalf("NewWebhook() error = %v", err)
	}

	resp := wh.Forward(context.Background(), srv.URL, []byte(`{}`))
	if resp.Error == nil {
		t.Error("Forward() expected timeout error, got nil")
	}
	if resp.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", resp.StatusCode)
	}
	once.Do(func() { close(release) })
}

func TestWebhook_Close_NilWebhook(t *testing.T) {
	var wh *Webhook
	wh.Close()
}

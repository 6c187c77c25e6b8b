package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_EmptyConfigUsesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Topics.IssuePrefix != "give-result/" {
		t.Errorf("Topics.IssuePrefix = %q, want give-result/", cfg.Topics.IssuePrefix)
	}
	if cfg.Topics.RedeemPrefix != "use-result/" {
		t.Errorf("Topics.RedeemPrefix = %q, want use-result/", cfg.Topics.RedeemPrefix)
	}
	if cfg.Sweep.Interval.Duration() != time.Hour {
		t.Errorf("Sweep.Interval = %v, want 1h", cfg.Sweep.Interval.Duration())
	}
	if cfg.Sweep.EvictionAge.Duration() != 30*time.Minute {
		t.Errorf("Sweep.EvictionAge = %v, want 30m", cfg.Sweep.EvictionAge.Duration())
	}
	if cfg.Stream.KeepAlive.Duration() != 15*time.Second {
		t.Errorf("Stream.KeepAlive = %v, want 15s", cfg.Stream.KeepAlive.Duration())
	}
	if cfg.Stream.ReleaseOnDisconnect == nil || !*cfg.Stream.ReleaseOnDisconnect {
		t.Error("Stream.ReleaseOnDisconnect should default to true")
	}
	if cfg.Webhook.URL != "" {
		t.Errorf("Webhook.URL = %q, want empty", cfg.Webhook.URL)
	}
	if cfg.Tracing.Enabled {
		t.Error("Tracing.Enabled should default to false")
	}
	if cfg.Tracing.ServiceName != "couponrelay" {
		t.Errorf("Tracing.ServiceName = %q, want couponrelay", cfg.Tracing.ServiceName)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want info/json", cfg.Log)
	}
}

func TestParse_FullConfig(t *testing.T) {
	yaml := `
port: 9090
topics:
  issue_prefix: /topic/give/
  redeem_prefix: /topic/use/
sweep:
  interval: 10m
  eviction_age: 5m
stream:
  keep_alive: 30s
  release_on_disconnect: false
webhook:
  url: https://gateway.example.com/push
  timeout: 3s
  headers:
    X-Relay: couponrelay
tracing:
  enabled: true
  stdout: true
  service_name: relay-test
log:
  level: debug
  format: text
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Port)
	}
	if cfg.Topics.IssuePrefix != "/topic/give/" {
		t.Errorf("Topics.IssuePrefix = %q, want /topic/give/", cfg.Topics.IssuePrefix)
	}
	if cfg.Sweep.Interval.Duration() != 10*time.Minute {
		t.Errorf("Sweep.Interval = %v, want 10m", cfg.Sweep.Interval.Duration())
	}
	if cfg.Sweep.EvictionAge.Duration() != 5*time.Minute {
		t.Errorf("Sweep.EvictionAge = %v, want 5m", cfg.Sweep.EvictionAge.Duration())
	}
	if cfg.Stream.KeepAlive.Duration() != 30*time.Second {
		t.Errorf("Stream.KeepAlive = %v, want 30s", cfg.Stream.KeepAlive.Duration())
	}
	if *cfg.Stream.ReleaseOnDisconnect {
		t.Error("Stream.ReleaseOnDisconnect = true, want false")
	}
	if cfg.Webhook.URL != "https://gateway.example.com/push" {
		t.Errorf("Webhook.URL = %q", cfg.Webhook.URL)
	}
	if cfg.Webhook.Timeout.Duration() != 3*time.Second {
		t.Errorf("Webhook.Timeout = %v, want 3s", cfg.Webhook.Timeout.Duration())
	}
	if cfg.Webhook.Headers["X-Relay"] != "couponrelay" {
		t.Errorf("Webhook.Headers[X-Relay] = %q, want couponrelay", cfg.Webhook.Headers["X-Relay"])
	}
	if !cfg.Tracing.Enabled || !cfg.Tracing.Stdout || cfg.Tracing.ServiceName != "relay-test" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Log.SlogLevel() != slog.LevelDebug {
		t.Errorf("Log.SlogLevel() = %v, want %v", cfg.Log.SlogLevel(), slog.LevelDebug)
	}
}

func TestParse_EnvVarSubstitution(t *testing.T) {
	// t.Setenv auto-restores after test
	t.Setenv("TEST_GATEWAY_HOST", "gateway.test.com")
	t.Setenv("TEST_GATEWAY_TOKEN", "secret123")

	yaml := `
webhook:
  url: https://${TEST_GATEWAY_HOST}/push
  headers:
    Authorization: "Bearer ${TEST_GATEWAY_TOKEN}"
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Webhook.URL != "https://gateway.test.com/push" {
		t.Errorf("Webhook.URL = %q, want https://gateway.test.com/push", cfg.Webhook.URL)
	}
	if cfg.Webhook.Headers["Authorization"] != "Bearer secret123" {
		t.Errorf("Headers[Authorization] = %q, want 'Bearer secret123'", cfg.Webhook.Headers["Authorization"])
	}
}

func TestParse_EnvVarDefaultDisablesWebhook(t *testing.T) {
	// UNSET_GATEWAY_URL is expected to not exist in the environment
	yaml := `
webhook:
  url: ${UNSET_GATEWAY_URL:-}
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Webhook.URL != "" {
		t.Errorf("Webhook.URL = %q, want empty", cfg.Webhook.URL)
	}
}

func TestParse_EnvVarInTopicPrefix(t *testing.T) {
	t.Setenv("TEST_TOPIC_ROOT", "/tenant-a")

	yaml := `
topics:
  issue_prefix: ${TEST_TOPIC_ROOT}/give-result/
  redeem_prefix: ${TEST_TOPIC_ROOT:-}/use-result/
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Topics.IssuePrefix != "/tenant-a/give-result/" {
		t.Errorf("Topics.IssuePrefix = %q, want /tenant-a/give-result/", cfg.Topics.IssuePrefix)
	}
	if cfg.Topics.RedeemPrefix != "/tenant-a/use-result/" {
		t.Errorf("Topics.RedeemPrefix = %q, want /tenant-a/use-result/", cfg.Topics.RedeemPrefix)
	}
}

func TestParse_EnvVarMissing(t *testing.T) {
	// MISSING_GATEWAY_VAR is expected to not exist in the environment
	yaml := `
webhook:
  url: https://${MISSING_GATEWAY_VAR}/push
`
	_, err := Parse([]byte(yaml))
	if err == nil {
		t.Fatal("Parse() expected error for missing env var, got nil")
	}
	if !strings.Contains(err.Error(), "MISSING_GATEWAY_VAR") {
		t.Errorf("error should mention MISSING_GATEWAY_VAR: %v", err)
	}
}

func TestParse_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "port out of range",
			yaml:    "port: 70000",
			wantErr: "port must be between",
		},
		{
			name: "same prefixes",
			yaml: `
topics:
  issue_prefix: result/
  redeem_prefix: result/`,
			wantErr: "must differ",
		},
		{
			name: "blank prefix",
			yaml: `
topics:
  issue_prefix: "  "`,
			wantErr: "prefixes cannot be blank",
		},
		{
			name: "sweep interval too short",
			yaml: `
sweep:
  interval: 100ms`,
			wantErr: "sweep.interval must be at least",
		},
		{
			name: "negative eviction age",
			yaml: `
sweep:
  eviction_age: -1m`,
			wantErr: "sweep.eviction_age must be positive",
		},
		{
			name: "negative keep-alive",
			yaml: `
stream:
  keep_alive: -1s`,
			wantErr: "stream.keep_alive must be positive",
		},
		{
			name: "webhook without scheme",
			yaml: `
webhook:
  url: gateway.example.com/push`,
			wantErr: "scheme must be http or https",
		},
		{
			name: "webhook ftp scheme",
			yaml: `
webhook:
  url: ftp://gateway.example.com`,
			wantErr: "scheme must be http or https",
		},
		{
			name: "negative webhook timeout",
			yaml: `
webhook:
  url: https://gateway.example.com
  timeout: -2s`,
			wantErr: "webhook.timeout cannot be negative",
		},
		{
			name: "unknown log level",
			yaml: `
log:
  level: verbose`,
			wantErr: "log.level",
		},
		{
			name: "unknown log format",
			yaml: `
log:
  format: xml`,
			wantErr: "log.format must be json or text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Parse() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("port: [unclosed"))
	if err == nil {
		t.Fatal("Parse() expected error for invalid YAML, got nil")
	}
	if !strings.Contains(err.Error(), "failed to parse YAML") {
		t.Errorf("error = %v, want error containing 'failed to parse YAML'", err)
	}
}

func TestDuration_UnmarshalYAML(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"seconds", "10s", 10 * time.Second, false},
		{"minutes", "2m", 2 * time.Minute, false},
		{"hours", "1h", time.Hour, false},
		{"combined", "1m30s", 90 * time.Second, false},
		{"invalid", "not-a-duration", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// eviction age accepts any positive duration
			yaml := `
sweep:
  eviction_age: ` + tt.input

			cfg, err := Parse([]byte(yaml))
			if tt.wantErr {
				if err == nil {
					t.Fatal("Parse() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if cfg.Sweep.EvictionAge.Duration() != tt.want {
				t.Errorf("EvictionAge = %v, want %v", cfg.Sweep.EvictionAge.Duration(), tt.want)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")
	t.Setenv("EMPTY_VAR", "") // set but empty

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"no vars", "plain text", "plain text", false},
		{"simple var", "${TEST_VAR}", "value", false},
		{"var in text", "prefix ${TEST_VAR} suffix", "prefix value suffix", false},
		{"multiple vars", "${TEST_VAR}-${TEST_VAR}", "value-value", false},
		{"with default (var set)", "${TEST_VAR:-default}", "value", false},
		{"with default (var unset)", "${UNSET:-default}", "default", false},
		{"missing required", "${MISSING}", "", true},
		{"empty default (var unset)", "${UNSET:-}", "", false},
		{"set but empty var", "${EMPTY_VAR}", "", false},
		{"set but empty with default", "${EMPTY_VAR:-fallback}", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// UNSET and MISSING are expected to not exist in environment
			got, err := expandEnvVars(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expandEnvVars() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("expandEnvVars() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("expandEnvVars() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	if err := os.WriteFile(path, []byte("port: 9191\n"), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != 9191 {
		t.Errorf("Port = %d, want 9191", cfg.Port)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("error = %v, want error containing 'failed to read config file'", err)
	}
}

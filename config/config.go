// Package config provides YAML configuration parsing for couponrelay.
//
// This package enables running the relay as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//
//	topics:
//	  issue_prefix: give-result/
//	  redeem_prefix: use-result/
//
//	sweep:
//	  interval: 1h
//	  eviction_age: 30m
//
//	stream:
//	  keep_alive: 15s
//	  release_on_disconnect: true
//
//	webhook:
//	  url: ${PUSH_GATEWAY_URL:-}
//	  timeout: 5s
//	  headers:
//	    Authorization: "Bearer ${PUSH_GATEWAY_TOKEN:-}"
//
//	tracing:
//	  enabled: false
//
//	log:
//	  level: info
//	  format: json
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultPort            = 8080
	defaultIssuePrefix     = "give-result/"
	defaultRedeemPrefix    = "use-result/"
	defaultSweepInterval   = time.Hour
	defaultEvictionAge     = 30 * time.Minute
	defaultStreamKeepAlive = 15 * time.Second
	defaultServiceName     = "couponrelay"

	// minSweepInterval keeps a misconfigured relay from spinning on sweeps.
	minSweepInterval = time.Second
)

// Config is the root configuration structure for the relay.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	Topics  TopicsConfig  `yaml:"topics"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Stream  StreamConfig  `yaml:"stream"`
	Webhook WebhookConfig `yaml:"webhook"`
	Tracing TracingConfig `yaml:"tracing"`
	Log     LogConfig     `yaml:"log"`
}

// TopicsConfig holds the destination prefixes per result kind.
type TopicsConfig struct {
	// IssuePrefix defaults to "give-result/".
	IssuePrefix string `yaml:"issue_prefix"`

	// RedeemPrefix defaults to "use-result/".
	RedeemPrefix string `yaml:"redeem_prefix"`
}

// SweepConfig controls eviction of stale entries.
type SweepConfig struct {
	// Interval is the time between sweeps. Defaults to 1h.
	Interval Duration `yaml:"interval"`

	// EvictionAge is how old an entry must be before it is evicted.
	// Defaults to 30m.
	EvictionAge Duration `yaml:"eviction_age"`
}

// StreamConfig controls the built-in SSE result streams.
type StreamConfig struct {
	// KeepAlive is the interval between keep-alive comments. Defaults to 15s.
	KeepAlive Duration `yaml:"keep_alive"`

	// ReleaseOnDisconnect drops a stream's connection marker when the client
	// leaves before its result arrives. Defaults to true.
	ReleaseOnDisconnect *bool `yaml:"release_on_disconnect"`
}

// WebhookConfig forwards pushes to an external push gateway. Leaving URL
// empty disables forwarding.
type WebhookConfig struct {
	// URL is the gateway base URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Timeout is the per-forward timeout. Defaults to 5s.
	Timeout Duration `yaml:"timeout"`

	// Headers are sent with every forward.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`
}

// TracingConfig controls OpenTelemetry tracing.
type TracingConfig struct {
	// Enabled installs an SDK tracer provider.
	Enabled bool `yaml:"enabled"`

	// Stdout exports spans to standard output.
	Stdout bool `yaml:"stdout"`

	// ServiceName defaults to "couponrelay".
	ServiceName string `yaml:"service_name"`
}

// LogConfig controls the relay logger.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `yaml:"level"`

	// Format is json or text. Defaults to json.
	Format string `yaml:"format"`
}

// SlogLevel returns the configured level as an [slog.Level].
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	// validated at parse time
	_ = level.UnmarshalText([]byte(l.Level))
	return level
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables are expanded in the fields listed on [Parse].
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in topic prefixes, the webhook URL and
// webhook header values. Defaults are applied to every unset field.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Topics.IssuePrefix == "" {
		c.Topics.IssuePrefix = defaultIssuePrefix
	}
	if c.Topics.RedeemPrefix == "" {
		c.Topics.RedeemPrefix = defaultRedeemPrefix
	}
	if c.Sweep.Interval == 0 {
		c.Sweep.Interval = Duration(defaultSweepInterval)
	}
	if c.Sweep.EvictionAge == 0 {
		c.Sweep.EvictionAge = Duration(defaultEvictionAge)
	}
	if c.Stream.KeepAlive == 0 {
		c.Stream.KeepAlive = Duration(defaultStreamKeepAlive)
	}
	if c.Stream.ReleaseOnDisconnect == nil {
		enabled := true
		c.Stream.ReleaseOnDisconnect = &enabled
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = defaultServiceName
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}

	var err error
	if c.Topics.IssuePrefix, err = expandEnvVars(c.Topics.IssuePrefix); err != nil {
		return fmt.Errorf("topics.issue_prefix: %w", err)
	}
	if c.Topics.RedeemPrefix, err = expandEnvVars(c.Topics.RedeemPrefix); err != nil {
		return fmt.Errorf("topics.redeem_prefix: %w", err)
	}
	if strings.TrimSpace(c.Topics.IssuePrefix) == "" || strings.TrimSpace(c.Topics.RedeemPrefix) == "" {
		return errors.New("topics: prefixes cannot be blank")
	}
	if c.Topics.IssuePrefix == c.Topics.RedeemPrefix {
		return fmt.Errorf("topics: issue_prefix and redeem_prefix must differ, both are %q", c.Topics.IssuePrefix)
	}

	if c.Sweep.Interval.Duration() < minSweepInterval {
		return fmt.Errorf("sweep.interval must be at least %s, got %s", minSweepInterval, c.Sweep.Interval.Duration())
	}
	if c.Sweep.EvictionAge.Duration() <= 0 {
		return fmt.Errorf("sweep.eviction_age must be positive, got %s", c.Sweep.EvictionAge.Duration())
	}
	if c.Stream.KeepAlive.Duration() <= 0 {
		return fmt.Errorf("stream.keep_alive must be positive, got %s", c.Stream.KeepAlive.Duration())
	}

	if err := c.Webhook.expandAndValidate(); err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return fmt.Errorf("log.level: unknown level %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be json or text, got %q", c.Log.Format)
	}

	return nil
}

func (w *WebhookConfig) expandAndValidate() error {
	expanded, err := expandEnvVars(w.URL)
	if err != nil {
		return fmt.Errorf("webhook.url: %w", err)
	}
	w.URL = strings.TrimSpace(expanded)

	for k, v := range w.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("webhook.headers[%s]: %w", k, err)
		}
		w.Headers[k] = expanded
	}

	if w.Timeout.Duration() < 0 {
		return fmt.Errorf("webhook.timeout cannot be negative, got %s", w.Timeout.Duration())
	}

	// empty URL disables forwarding
	if w.URL == "" {
		return nil
	}

	parsedURL, err := url.Parse(w.URL)
	if err != nil {
		return fmt.Errorf("webhook.url: invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("webhook.url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("webhook.url must have a host")
	}

	return nil
}

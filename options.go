package couponrelay

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

// relayConfig holds mutable state during Relay construction.
type relayConfig struct {
	port                int
	logger              *slog.Logger
	clock               Clock
	issuePrefix         string
	redeemPrefix        string
	sweepInterval       time.Duration
	evictionAge         time.Duration
	transports          []Transport
	webhook             *webhookConfig
	releaseOnDisconnect bool
	streamKeepAlive     time.Duration
}

type webhookConfig struct {
	url     string
	timeout time.Duration
	headers map[string]string
}

// Option is a function that configures a [Relay] instance during construction.
//
// Options return an error if validation fails.
//
// Built-in options: [WithPort], [WithLogger], [WithClock],
// [WithIssueTopicPrefix], [WithRedeemTopicPrefix], [WithSweepInterval],
// [WithEvictionAge], [WithTransport], [WithWebhook],
// [WithDisconnectRelease], [WithStreamKeepAlive].
type Option func(*relayConfig) error

// WithPort sets the HTTP server port.
//
// Defaults to 8080 if not specified. Must be between 1 and 65535.
func WithPort(port int) Option {
	return func(cfg *relayConfig) error {
		if port < 1 || port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", port)
		}
		cfg.port = port
		return nil
	}
}

// WithLogger sets the logger used by the relay and its components.
//
// Defaults to [slog.Default] if not specified.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	relay, err := couponrelay.New(couponrelay.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *relayConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithClock sets the clock used to stamp connections and results and to
// decide eviction. Defaults to the system clock.
func WithClock(c Clock) Option {
	return func(cfg *relayConfig) error {
		if c == nil {
			return errors.New("clock cannot be nil")
		}
		cfg.clock = c
		return nil
	}
}

// WithIssueTopicPrefix sets the destination prefix for [KindIssue] results.
//
// Defaults to "give-result/".
func WithIssueTopicPrefix(prefix string) Option {
	return func(cfg *relayConfig) error {
		if strings.TrimSpace(prefix) == "" {
			return errors.New("issue topic prefix cannot be empty")
		}
		cfg.issuePrefix = prefix
		return nil
	}
}

// WithRedeemTopicPrefix sets the destination prefix for [KindRedeem] results.
//
// Defaults to "use-result/".
func WithRedeemTopicPrefix(prefix string) Option {
	return func(cfg *relayConfig) error {
		if strings.TrimSpace(prefix) == "" {
			return errors.New("redeem topic prefix cannot be empty")
		}
		cfg.redeemPrefix = prefix
		return nil
	}
}

// WithSweepInterval sets how often stale entries are evicted.
//
// Defaults to 1 hour.
func WithSweepInterval(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("sweep interval must be positive")
		}
		cfg.sweepInterval = d
		return nil
	}
}

// WithEvictionAge sets how old a buffered result or connection marker must be
// before a sweep evicts it. Entries exactly this old are kept.
//
// Defaults to 30 minutes.
func WithEvictionAge(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("eviction age must be positive")
		}
		cfg.evictionAge = d
		return nil
	}
}

// WithTransport adds a transport that receives every push alongside the
// built-in stream hub. Can be called multiple times.
func WithTransport(t Transport) Option {
	return func(cfg *relayConfig) error {
		if t == nil {
			return errors.New("transport cannot be nil")
		}
		cfg.transports = append(cfg.transports, t)
		return nil
	}
}

// WithWebhook forwards every push to an external push gateway as
// POST <baseURL>/<destination> with the result as a JSON body.
//
// A zero timeout uses the default of 5 seconds. Headers are sent with every
// forward.
func WithWebhook(baseURL string, timeout time.Duration, headers map[string]string) Option {
	return func(cfg *relayConfig) error {
		u, err := url.Parse(baseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid webhook URL: %q", baseURL)
		}
		if timeout < 0 {
			return errors.New("webhook timeout cannot be negative")
		}
		h := make(map[string]string, len(headers))
		for k, v := range headers {
			h[k] = v
		}
		cfg.webhook = &webhookConfig{url: baseURL, timeout: timeout, headers: h}
		return nil
	}
}

// WithDisconnectRelease controls whether a stream that ends without a result
// removes its own connection marker. Enabled by default; when disabled the
// marker stays until a result arrives or the sweep evicts it.
func WithDisconnectRelease(enabled bool) Option {
	return func(cfg *relayConfig) error {
		cfg.releaseOnDisconnect = enabled
		return nil
	}
}

// WithStreamKeepAlive sets the interval between keep-alive comments on
// result streams.
//
// Defaults to 15 seconds.
func WithStreamKeepAlive(d time.Duration) Option {
	return func(cfg *relayConfig) error {
		if d <= 0 {
			return errors.New("stream keep-alive must be positive")
		}
		cfg.streamKeepAlive = d
		return nil
	}
}

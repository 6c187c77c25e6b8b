package config

import (
	"github.com/jpalmerr/couponrelay"
)

// BuildOptions converts parsed configuration into SDK options.
//
// Logging and tracing are not included; the CLI sets those up from
// [LogConfig] and [TracingConfig] before creating the relay.
func BuildOptions(cfg *Config) []couponrelay.Option {
	opts := []couponrelay.Option{
		couponrelay.WithPort(cfg.Port),
		couponrelay.WithIssueTopicPrefix(cfg.Topics.IssuePrefix),
		couponrelay.WithRedeemTopicPrefix(cfg.Topics.RedeemPrefix),
		couponrelay.WithSweepInterval(cfg.Sweep.Interval.Duration()),
		couponrelay.WithEvictionAge(cfg.Sweep.EvictionAge.Duration()),
		couponrelay.WithStreamKeepAlive(cfg.Stream.KeepAlive.Duration()),
	}

	if cfg.Stream.ReleaseOnDisconnect != nil {
		opts = append(opts, couponrelay.WithDisconnectRelease(*cfg.Stream.ReleaseOnDisconnect))
	}

	if cfg.Webhook.URL != "" {
		opts = append(opts, couponrelay.WithWebhook(
			cfg.Webhook.URL,
			cfg.Webhook.Timeout.Duration(),
			cfg.Webhook.Headers,
		))
	}

	return opts
}

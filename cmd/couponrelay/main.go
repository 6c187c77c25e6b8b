// Package main is the entry point for the couponrelay CLI.
//
// couponrelay can be embedded as a library (SDK) or run as a standalone
// binary with YAML configuration. This CLI provides the standalone binary.
//
// Usage:
//
//	couponrelay serve -c config.yaml    # Start the relay
//	couponrelay validate -c config.yaml # Validate configuration
//	couponrelay version                 # Show version info
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "couponrelay",
	Short: "Store-and-forward relay for coupon results",
	Long: `couponrelay delivers asynchronous coupon issue and redeem results to the
clients waiting for them.

Backends POST results to /v1/coupon-messages. Clients open a stream at
/v1/coupons/{kind}/results/{requestId}/stream. Whichever arrives first, the
result is delivered exactly once; stale results and connections are swept.

Quick start:
  1. Create a config file (couponrelay.yaml)
  2. Run: couponrelay serve -c couponrelay.yaml

Example config:
  port: 8080
  topics:
    issue_prefix: give-result/
    redeem_prefix: use-result/
  sweep:
    interval: 1h
    eviction_age: 30m`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func main() {
	Execute()
}

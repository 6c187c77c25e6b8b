package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/couponrelay/config"
)

// validateCmd validates a config file without starting the server.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a couponrelay configuration file without starting the server.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  couponrelay validate -c config.yaml
  couponrelay validate --config /etc/couponrelay/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	webhook := "disabled"
	if cfg.Webhook.URL != "" {
		webhook = cfg.Webhook.URL
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:           %d\n", cfg.Port)
	fmt.Printf("  Issue prefix:   %s\n", cfg.Topics.IssuePrefix)
	fmt.Printf("  Redeem prefix:  %s\n", cfg.Topics.RedeemPrefix)
	fmt.Printf("  Sweep interval: %s\n", cfg.Sweep.Interval.Duration())
	fmt.Printf("  Eviction age:   %s\n", cfg.Sweep.EvictionAge.Duration())
	fmt.Printf("  Webhook:        %s\n", webhook)

	return nil
}

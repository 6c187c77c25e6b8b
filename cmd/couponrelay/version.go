package main

import (
	"fmt"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// version is also reported as the service version on exported spans.
// Release builds override it with -ldflags "-X main.version=...".
var version = "dev"

// buildInfo returns the VCS revision and commit time embedded by the Go
// toolchain, or "unknown" when the binary was built outside a checkout.
func buildInfo() (revision, built string) {
	revision, built = "unknown", "unknown"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return revision, built
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			built = s.Value
		}
	}
	return revision, built
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		revision, built := buildInfo()
		fmt.Fprintf(cmd.OutOrStdout(), "couponrelay %s\n  revision: %s\n  built:    %s\n", version, revision, built)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

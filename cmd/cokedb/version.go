package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/untoldecay/cokedb/session"
)

// Version is cokedb's CLI release version, overridden by ldflags at build
// time.
var Version = "v0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		compatible, reason := session.CheckClientVersion(Version)
		if jsonOutput {
			out := map[string]any{
				"cli_version":    Version,
				"engine_version": session.EngineVersion,
				"compatible":     compatible,
			}
			if reason != "" {
				out["reason"] = reason
			}
			return printJSON(out)
		}
		fmt.Printf("cokedb %s (engine %s)\n", Version, session.EngineVersion)
		if !compatible {
			fmt.Printf("warning: %s\n", reason)
		}
		return nil
	},
}

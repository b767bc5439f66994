package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"siecore/apps/console/internal/app"
)

// Set via ldflags at build time.
var (
	version = app.Version
	commit  = "none"
	date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "console %s (commit %s, built %s)\n", version, commit, date)
	},
}

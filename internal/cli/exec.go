package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"siecore/apps/console/internal/shell"
)

var execCmd = &cobra.Command{
	Use:   "exec -- <command>",
	Short: "Run a guarded shell command in the project root",
	Long: `Run a command through the same guard and timeout as the operator terminal.

Examples:
  console exec -- git status
  console exec -- "npm install && npm run build"`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		command := strings.Join(args, " ")
		executor := shell.New(shell.Options{
			Root:      cfg.ProjectRoot,
			Timeout:   cfg.ShellTimeout,
			Allowlist: cfg.ShellAllowlist,
		})
		result := executor.Run(cmd.Context(), command)

		out := cmd.OutOrStdout()
		if result.Output != "" {
			fmt.Fprint(out, result.Output)
			if !strings.HasSuffix(result.Output, "\n") {
				fmt.Fprintln(out)
			}
		}
		if result.Error != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), color.New(color.FgRed).Sprint(result.Error))
		}
		if result.ExitCode != 0 {
			return fmt.Errorf("exit code %d", result.ExitCode)
		}
		return nil
	},
}

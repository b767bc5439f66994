package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"siecore/apps/console/internal/review"
	"siecore/apps/console/internal/workspace"
)

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "Inspect and restore file backups",
	Long: `Every write, delete and restore backs up the previous content first.

Examples:
  console snapshots ls src/app.js
  console snapshots diff src/app.js app.js.1767323045000.bak
  console snapshots restore src/app.js app.js.1767323045000.bak`,
}

var snapshotsListCmd = &cobra.Command{
	Use:   "ls <path>",
	Short: "List backups of a file, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := openWorkspace()
		if err != nil {
			return err
		}
		items, err := files.Snapshots(args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(items) == 0 {
			fmt.Fprintln(out, "no snapshots")
			return nil
		}
		for _, item := range items {
			fmt.Fprintf(out, "%s  %s\n", item.CapturedAt, item.Name)
		}
		return nil
	},
}

var snapshotsDiffCmd = &cobra.Command{
	Use:   "diff <path> <snapshot>",
	Short: "Show what changed since a backup was taken",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := openWorkspace()
		if err != nil {
			return err
		}
		patch, err := snapshotDiff(files, args[0], args[1])
		if err != nil {
			return err
		}
		if patch == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "no changes")
			return nil
		}
		return writeHighlighted(cmd.OutOrStdout(), patch, "diff")
	},
}

var snapshotsRestoreCmd = &cobra.Command{
	Use:   "restore <path> <snapshot>",
	Short: "Write a backup back over the current file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := openWorkspace()
		if err != nil {
			return err
		}
		result, err := files.Restore(args[0], args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "restored %s from %s\n", result.Path, args[1])
		if result.Snapshot != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "previous content saved as %s\n", result.Snapshot.Name)
		}
		return nil
	},
}

func init() {
	snapshotsCmd.AddCommand(snapshotsListCmd)
	snapshotsCmd.AddCommand(snapshotsDiffCmd)
	snapshotsCmd.AddCommand(snapshotsRestoreCmd)
}

// snapshotDiff compares a backup against the file as it is now. A file that
// no longer exists diffs against empty content.
func snapshotDiff(files *workspace.Workspace, path, name string) (string, error) {
	before, err := files.SnapshotContent(path, name)
	if err != nil {
		return "", err
	}
	after, err := files.Read(path)
	if err != nil && !errors.Is(err, workspace.ErrNotFound) {
		return "", err
	}
	return review.UnifiedDiff(path, before, after), nil
}

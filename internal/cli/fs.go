package cli

import (
	"fmt"
	"path/filepath"

	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/sandbox"
	"siecore/apps/console/internal/snapshot"
	"siecore/apps/console/internal/workspace"
)

var fsCmd = &cobra.Command{
	Use:   "fs",
	Short: "Browse the sandboxed project tree",
}

var fsListCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List a project directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "."
		if len(args) == 1 {
			path = args[0]
		}
		files, err := openWorkspace()
		if err != nil {
			return err
		}
		nodes, err := files.List(path)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, node := range nodes {
			name := node.Path
			if node.Type == domain.FileTypeDirectory {
				name = color.New(color.FgBlue).Sprint(name + "/")
			}
			if node.IsProtected {
				name += " " + color.New(color.FgYellow).Sprint("[protected]")
			}
			fmt.Fprintln(out, name)
		}
		return nil
	},
}

var fsCatCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print a project file with syntax highlighting",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := openWorkspace()
		if err != nil {
			return err
		}
		content, err := files.Read(args[0])
		if err != nil {
			return err
		}
		lexerName := filepath.Base(args[0])
		if lexers.Match(lexerName) == nil {
			lexerName = "plaintext"
		}
		return writeHighlighted(cmd.OutOrStdout(), content, lexerName)
	},
}

func init() {
	fsCmd.AddCommand(fsListCmd)
	fsCmd.AddCommand(fsCatCmd)
}

// openWorkspace builds the sandboxed file layer alone, without the store or
// the health poller.
func openWorkspace() (*workspace.Workspace, error) {
	box, err := sandbox.New(cfg.ProjectRoot, cfg.ProtectedPaths)
	if err != nil {
		return nil, err
	}
	files := workspace.New(box, snapshot.New(cfg.BackupDir))
	files.Reserve(cfg.ReservedPaths()...)
	return files, nil
}

package cli

import (
	"fmt"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"siecore/apps/console/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the read-only MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		srv, err := openServer()
		if err != nil {
			return err
		}
		defer srv.Close()

		mcpServer := mcpserver.New(mcpserver.Dependencies{
			Files:   srv.Workspace(),
			Keys:    srv.Keys(),
			Health:  srv.Health(),
			Version: version,
		})
		if err := server.ServeStdio(mcpServer); err != nil {
			return fmt.Errorf("console-mcp: %w", err)
		}
		return nil
	},
}

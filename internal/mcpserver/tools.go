// Package mcpserver exposes a read-only view of the console over MCP so an
// external agent can inspect the project without being able to change it.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"siecore/apps/console/internal/domain"
	"siecore/apps/console/internal/provider"
)

type Files interface {
	List(path string) ([]domain.FileNode, error)
	Read(path string) (string, error)
	Snapshots(path string) ([]domain.Snapshot, error)
}

type Keys interface {
	List(ctx context.Context, activeOnly bool) ([]domain.Credential, error)
}

type Health interface {
	Snapshot(ctx context.Context) domain.HealthStatus
}

type Dependencies struct {
	Files   Files
	Keys    Keys
	Health  Health
	Version string
}

func New(deps Dependencies) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer("console-mcp", version, server.WithToolCapabilities(true))
	Register(s, deps)
	return s
}

// Register adds the read-only tools. Nothing here writes files, runs
// commands or reveals key values.
func Register(s *server.MCPServer, deps Dependencies) {
	s.AddTool(listFilesTool(), listFilesHandler(deps.Files))
	s.AddTool(readFileTool(), readFileHandler(deps.Files))
	s.AddTool(listSnapshotsTool(), listSnapshotsHandler(deps.Files))
	s.AddTool(listKeysTool(), listKeysHandler(deps.Keys))
	if deps.Health != nil {
		s.AddTool(healthTool(), healthHandler(deps.Health))
	}
}

func listFilesTool() mcp.Tool {
	return mcp.NewTool("list_files",
		mcp.WithDescription("List a directory of the project. Directories come first; protected entries are marked."),
		mcp.WithString("path",
			mcp.Description("Directory relative to the project root. Omit for the root."),
		),
	)
}

func listFilesHandler(files Files) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		nodes, err := files.List(req.GetString("path", ""))
		if err != nil {
			return toolError(err)
		}
		if len(nodes) == 0 {
			return mcp.NewToolResultText("Empty directory."), nil
		}
		var sb strings.Builder
		for _, node := range nodes {
			marker := ""
			if node.IsProtected {
				marker = "  [protected]"
			}
			kind := "F"
			if node.Type == domain.FileTypeDirectory {
				kind = "D"
			}
			fmt.Fprintf(&sb, "%s  %s%s\n", kind, node.Path, marker)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func readFileTool() mcp.Tool {
	return mcp.NewTool("read_file",
		mcp.WithDescription("Read a project file."),
		mcp.WithString("path",
			mcp.Description("File path relative to the project root"),
			mcp.Required(),
		),
	)
}

func readFileHandler(files Files) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		path := req.GetString("path", "")
		if strings.TrimSpace(path) == "" {
			return toolError(fmt.Errorf("path is required"))
		}
		content, err := files.Read(path)
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(content), nil
	}
}

func listSnapshotsTool() mcp.Tool {
	return mcp.NewTool("list_snapshots",
		mcp.WithDescription("List the backups taken of a file before it was overwritten, oldest first."),
		mcp.WithString("path",
			mcp.Description("File path relative to the project root"),
			mcp.Required(),
		),
	)
}

func listSnapshotsHandler(files Files) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		snaps, err := files.Snapshots(req.GetString("path", ""))
		if err != nil {
			return toolError(err)
		}
		if len(snaps) == 0 {
			return mcp.NewToolResultText("No snapshots."), nil
		}
		var sb strings.Builder
		for _, snap := range snaps {
			fmt.Fprintf(&sb, "%s  %s\n", snap.CapturedAt, snap.Name)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func listKeysTool() mcp.Tool {
	return mcp.NewTool("list_keys",
		mcp.WithDescription("List AI provider credentials in fallback order. Key values are masked."),
		mcp.WithBoolean("active_only",
			mcp.Description("Only include active credentials"),
		),
	)
}

func listKeysHandler(keys Keys) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		creds, err := keys.List(ctx, req.GetBool("active_only", false))
		if err != nil {
			return toolError(err)
		}
		if len(creds) == 0 {
			return mcp.NewToolResultText("No credentials."), nil
		}
		var sb strings.Builder
		for _, cred := range creds {
			cred = provider.MaskCredential(cred)
			state := "active"
			if !cred.IsActive {
				state = "inactive"
			}
			fmt.Fprintf(&sb, "#%d  %s  priority=%d  %s  key=%s  usage=%d  errors=%d  %s\n",
				cred.ID, cred.Provider, cred.Priority, state, cred.KeyValue, cred.UsageCount, cred.ErrorCount, cred.Label)
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func healthTool() mcp.Tool {
	return mcp.NewTool("health",
		mcp.WithDescription("Return the console health status as JSON."),
	)
}

func healthHandler(health Health) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		raw, err := json.MarshalIndent(health.Snapshot(ctx), "", "  ")
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

package main

import (
	farmmcp "github.com/farmsync/farmsync/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

This lets MCP-capable assistants read the herd, add animals, record
milkings and trigger a sync.

Example MCP client configuration:

  {
    "mcpServers": {
      "farmsync": {
        "command": "farmsync",
        "args": ["mcp"],
        "env": {
          "FARMSYNC_FARM": "rancho-norte",
          "FARMSYNC_URL": "https://project.supabase.co",
          "FARMSYNC_API_KEY": "..."
        }
      }
    }
  }

Environment variables:
  FARMSYNC_FARM          Farm profile (default: default)
  FARMSYNC_DB_PATH       Local database path (default: derived from the farm)
  FARMSYNC_URL           Remote REST API URL (optional, enables sync)
  FARMSYNC_API_KEY       Remote API key (required if FARMSYNC_URL set)
  FARMSYNC_POSTGRES_DSN  Direct Postgres connection (alternative to the REST API)`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	// The server lives for the whole session, so keep the herd in sync.
	cfg.AutoSync = !cfg.IsOffline()

	client, _, err := openClientWith(cfg)
	if err != nil {
		return err
	}
	defer client.Close()

	return farmmcp.NewServer(client).Run()
}

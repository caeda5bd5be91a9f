package main

import (
	"fmt"

	"github.com/notehive/notehive"
	notehivemcp "github.com/notehive/notehive/mcp"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for agent integration",
	Long: `Start a Model Context Protocol (MCP) server over stdio.

This lets MCP-compatible agents read and write notes through the same
offline-first bridge the CLI uses.

Environment variables:
  NOTEHIVE_DB_PATH   Path to local SQLite database
  NOTEHIVE_USER_ID   Account user ID (required)
  NIMBUS_URL         Nimbus service URL (optional, enables sync)
  NIMBUS_API_KEY     Nimbus API key (required if NIMBUS_URL set)`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	client, err := notehive.New(loadConfig())
	if err != nil {
		return fmt.Errorf("initialize client: %w", err)
	}
	defer client.Close()

	server := notehivemcp.NewServer(client)
	return server.Run()
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/dmitriimaksimovdevelop/perflens/internal/config"
	"github.com/dmitriimaksimovdevelop/perflens/internal/mcp"
)

func newMCPCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start Model Context Protocol (MCP) server",
		Long: `Starts a JSON-RPC server implementing the Model Context Protocol (MCP).
Each analyzer is exposed as a tool so AI agents (e.g., Claude Desktop,
Cursor) can run perflens against a binary and read the typed result.

Communication happens over standard input/output (stdio). Logs go to stderr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig(config.Overrides{})
			if err != nil {
				return err
			}
			p := a.progress()
			p.Debug("starting MCP server on stdio")
			return mcp.NewServer(version, cfg, p.Logger()).Start(cmd.Context())
		},
	}
}

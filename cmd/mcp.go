package main

import (
	"os"

	"github.com/spf13/cobra"

	"design-coach/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the coach as MCP tools over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol
		level := setupLogger(os.Stderr)
		a, err := buildApp(cmd.Context(), configPath, level)
		if err != nil {
			return err
		}
		defer func() { _ = a.Close() }()

		cfg := a.config.Current()
		s, err := mcpserver.New(a.coach, cfg.Application.Name, cfg.Application.Version)
		if err != nil {
			return err
		}
		return mcpserver.Serve(s)
	},
}

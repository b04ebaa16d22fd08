package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/ragd/internal/mcp"
)

func newMCPCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve MCP tools on stdio",
		Long: `Serve the ragd tools over the Model Context Protocol on stdin/stdout.

Every tool takes a user_id argument naming the document owner. Logs go to
stderr because stdout carries the protocol.

Example MCP client entry:
  {"command": "ragd", "args": ["mcp"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, flags, true)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(ctx))

			srv, err := mcp.NewServer(&mcp.Config{
				Name:    "ragd",
				Version: version,
				Logger:  a.logger,
			}, a.registry)
			if err != nil {
				return fmt.Errorf("creating mcp server: %w", err)
			}
			return srv.Run(ctx)
		},
	}
}

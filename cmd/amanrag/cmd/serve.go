package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/mcp"
)

func newServeCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server",
		Long: `Run a Model Context Protocol server exposing the ask, reindex and
status tools to AI clients.

stdout carries JSON-RPC only; logs go to the log file.`,
		Example: `  # Claude Code / Cursor MCP config
  {"command": "amanrag", "args": ["serve", "-C", "/path/to/docs"]}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio")

	return cmd
}

func runServe(ctx context.Context, transport string) error {
	a, err := openApp(ctx, projectDir, appOptions{query: true})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	srv, err := mcp.NewServer(mcp.Dependencies{
		Engine:   a.engine,
		Indexer:  a.indexer,
		Caches:   a.caches,
		Embedder: a.embedder,
	})
	if err != nil {
		return err
	}

	slog.Info("serve_started", slog.String("root", a.root), slog.String("collection", a.cfg.Store.Collection))
	err = srv.Serve(ctx, transport)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

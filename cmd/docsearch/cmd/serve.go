package cmd

import (
	"context"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/embed"
	"github.com/Aman-CERP/docsearch/internal/mcp"
	"github.com/Aman-CERP/docsearch/internal/search"
	"github.com/Aman-CERP/docsearch/internal/store"
)

func newServeCmd() *cobra.Command {
	var indexDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search_docs over MCP stdio",
		Long: `Load the index and answer MCP requests on stdin/stdout.

Stdout carries protocol frames only; logs go to stderr. A missing index
does not stop the server: every search then answers with an error line
telling the user to run 'docsearch index'.`,
		Example: `  # Serve the index in ./vectordb
  docsearch serve

  # Serve another index
  docsearch serve --index /srv/docs/vectordb`,
		Annotations: map[string]string{annotationLogStderr: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if indexDir != "" {
				cfg.Index.Dir = indexDir
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runServe(ctx, cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&indexDir, "index", "", "Index directory (default: index.dir from config)")

	return cmd
}

// runServe loads the index once and serves until the input closes or ctx ends.
func runServe(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer) error {
	provider, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	var embedder embed.Embedder = provider
	if cfg.Embeddings.CacheSize > 0 {
		embedder = embed.NewCachedEmbedder(provider, cfg.Embeddings.CacheSize)
	}
	defer func() { _ = embedder.Close() }()

	index := store.Load(cfg.Index.Dir, hnswConfig(cfg))
	if index.Loaded() {
		m := index.Manifest()
		slog.Info("index loaded",
			slog.String("dir", cfg.Index.Dir),
			slog.Int("chunks", index.Count()),
			slog.Int("dim", index.Dim()),
			slog.String("backend", string(index.Backend())),
			slog.String("index_model", m.Model))
	} else {
		slog.Warn("no index loaded, searches will fail until 'docsearch index' is run",
			slog.String("dir", cfg.Index.Dir))
	}

	engine, err := search.NewEngine(index, embedder,
		search.WithConfig(search.EngineConfig{
			DefaultTopK:  cfg.Search.TopK,
			PreviewChars: cfg.Search.PreviewChars,
		}),
		search.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	server, err := mcp.NewServer(engine, mcp.Config{
		Name:        mcp.ServerName,
		Version:     mcp.ServerVersion,
		Sections:    cfg.Search.Sections,
		DefaultTopK: cfg.Search.TopK,
	}, mcp.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	slog.Info("server ready",
		slog.String("name", mcp.ServerName),
		slog.String("version", mcp.ServerVersion),
		slog.String("model", embedder.ModelName()),
		slog.Any("sections", cfg.Search.Sections))

	// Serve blocks in a read; a signal returns without waiting for input.
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx, in, out) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		slog.Info("shutting down", slog.String("reason", context.Cause(ctx).Error()))
		return nil
	}
}

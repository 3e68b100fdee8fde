package cmd

import (
	"context"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/config"
	"github.com/Aman-CERP/docsearch/internal/docs"
	errs "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/index"
	"github.com/Aman-CERP/docsearch/internal/store"
	"github.com/Aman-CERP/docsearch/internal/ui"
)

// indexOptions holds CLI flags for index. Zero values keep the config.
type indexOptions struct {
	docsDir   string
	outDir    string
	backend   string
	chunkSize int
	overlap   int
	retries   int
	rate      float64
	noCache   bool
	noTUI     bool
	skipCheck bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the vector index from the docs tree",
		Long: `Discover documents under the docs directory, split them into overlapping
chunks, embed every chunk and write the index artifacts.

Each top-level directory under the docs directory is a section. Chunks
whose embedding fails are reported and left out; the build fails only
when nothing could be embedded.`,
		Example: `  # Build ./vectordb from ./docs
  docsearch index

  # Build with HNSW and a custom layout
  docsearch index --docs ./manuals --out ./manuals-index --backend hnsw

  # Plain progress output, retry transient provider errors
  docsearch index --no-tui --retries 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return errs.ConfigError(err.Error(), err)
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			_, err = runIndex(ctx, cfg, opts, cmd.OutOrStdout())
			return err
		},
	}

	cmd.Flags().StringVar(&opts.docsDir, "docs", "", "Docs directory (default: docs.dir)")
	cmd.Flags().StringVar(&opts.outDir, "out", "", "Index output directory (default: index.dir)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Index backend: auto, flat, hnsw, faiss")
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", 0, "Chunk size in characters")
	cmd.Flags().IntVar(&opts.overlap, "overlap", 0, "Chunk overlap in characters")
	cmd.Flags().IntVar(&opts.retries, "retries", 0, "Retries for transient provider errors")
	cmd.Flags().Float64Var(&opts.rate, "rate", 0, "Maximum provider calls per second")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "Do not use the persistent embedding cache")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output")
	cmd.Flags().BoolVar(&opts.skipCheck, "skip-check", false, "Skip the provider connectivity check")

	return cmd
}

// apply copies explicitly set flags onto cfg.
func (o indexOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if o.docsDir != "" {
		cfg.Docs.Dir = o.docsDir
	}
	if o.outDir != "" {
		cfg.Index.Dir = o.outDir
	}
	if o.backend != "" {
		cfg.Index.Backend = o.backend
	}
	if flags.Changed("chunk-size") {
		cfg.Chunking.Size = o.chunkSize
	}
	if flags.Changed("overlap") {
		cfg.Chunking.Overlap = o.overlap
	}
	if flags.Changed("retries") {
		cfg.Embeddings.Retries = o.retries
	}
	if flags.Changed("rate") {
		cfg.Embeddings.RateLimit = o.rate
	}
	if o.noCache {
		cfg.Embeddings.DiskCache = false
	}
}

func runIndex(ctx context.Context, cfg *config.Config, opts indexOptions, out io.Writer) (*index.RunnerResult, error) {
	backend, err := store.ParseBackend(cfg.Index.Backend)
	if err != nil {
		return nil, errs.ConfigError(err.Error(), err)
	}

	source, err := docs.NewFSSource(cfg.Docs.Dir, docs.Options{
		Extensions: cfg.Docs.Extensions,
		Exclude:    cfg.Docs.Exclude,
	})
	if err != nil {
		return nil, errs.New(errs.ErrCodeFileNotFound, "docs directory not readable: "+cfg.Docs.Dir, err).
			WithSuggestion("Create it with one subdirectory per section, or pass --docs")
	}

	provider, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	embedOpts := index.EmbedderOptions{
		RatePerSecond: cfg.Embeddings.RateLimit,
		Retries:       cfg.Embeddings.Retries,
	}
	if cfg.Embeddings.DiskCache {
		embedOpts.CachePath = filepath.Join(cfg.Index.Dir, index.CacheFile)
	}
	embedder, err := index.WrapEmbedder(provider, embedOpts)
	if err != nil {
		_ = provider.Close()
		return nil, err
	}
	defer func() { _ = embedder.Close() }()

	renderer := ui.NewRenderer(ui.NewConfig(out,
		ui.WithForcePlain(opts.noTUI),
		ui.WithNoColor(ui.DetectNoColor()),
		ui.WithTitle(cfg.Docs.Dir),
	))
	if err := renderer.Start(ctx); err != nil {
		return nil, err
	}
	defer func() { _ = renderer.Stop() }()

	runner, err := index.NewRunner(index.RunnerDependencies{
		Source:   source,
		Embedder: embedder,
		Renderer: renderer,
	})
	if err != nil {
		return nil, err
	}

	return runner.Run(ctx, index.RunnerConfig{
		OutDir:    cfg.Index.Dir,
		ChunkSize: cfg.Chunking.Size,
		Overlap:   cfg.Chunking.Overlap,
		Backend:   backend,
		HNSW:      hnswConfig(cfg),
		SkipCheck: opts.skipCheck,
	})
}

package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docsearch/internal/config"
	errs "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/mcp"
	"github.com/Aman-CERP/docsearch/internal/output"
	"github.com/Aman-CERP/docsearch/internal/search"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	topK    int
	section string
	format  string
	index   string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run one query against the index",
		Long: `Embed the query and print the closest chunks, the same way the
search_docs tool answers MCP clients.`,
		Example: `  docsearch search "configure providers"
  docsearch search "keybindings" --section opencode --top-k 3
  docsearch search "hooks" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if opts.index != "" {
				cfg.Index.Dir = opts.index
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runSearch(ctx, cfg, strings.Join(args, " "), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Number of results (default: search.top_k)")
	cmd.Flags().StringVarP(&opts.section, "section", "s", "", "Restrict results to one section")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json, markdown")
	cmd.Flags().StringVar(&opts.index, "index", "", "Index directory (default: index.dir)")

	return cmd
}

func runSearch(ctx context.Context, cfg *config.Config, query string, opts searchOptions, out io.Writer) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return errs.New(errs.ErrCodeInvalidInput, err.Error(), nil)
	}
	if strings.TrimSpace(query) == "" {
		return errs.New(errs.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if opts.section != "" && !slices.Contains(cfg.Search.Sections, opts.section) {
		return errs.New(errs.ErrCodeUnknownSection,
			fmt.Sprintf("unknown section %q", opts.section), nil).
			WithSuggestion("Use one of: " + strings.Join(cfg.Search.Sections, ", "))
	}

	topK := opts.topK
	if topK <= 0 {
		topK = cfg.Search.TopK
	}
	topK = min(max(topK, config.MinTopK), config.MaxTopK)

	index := store.Load(cfg.Index.Dir, hnswConfig(cfg))
	if !index.Loaded() {
		return search.ErrIndexUnavailable
	}

	provider, err := newEmbedder(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = provider.Close() }()

	engine, err := search.NewEngine(index, provider,
		search.WithConfig(search.EngineConfig{DefaultTopK: cfg.Search.TopK, PreviewChars: cfg.Search.PreviewChars}),
		search.WithLogger(slog.Default()))
	if err != nil {
		return err
	}

	slog.Info("search_started", slog.String("query", query), slog.Int("top_k", topK), slog.String("section", opts.section))
	results, err := engine.Search(ctx, query, search.Options{TopK: topK, Section: opts.section})
	if err != nil {
		return err
	}
	slog.Info("search_complete", slog.Int("results", len(results)))

	w := output.New(out)
	switch format {
	case output.FormatJSON:
		if results == nil {
			results = []search.Result{}
		}
		return w.JSON(output.SearchReport{Query: query, Section: opts.section, TopK: topK, Results: results})
	case output.FormatMarkdown:
		_, err := fmt.Fprint(out, mcp.FormatResults(query, results, nil))
		return err
	default:
		w.Results(query, results)
		return nil
	}
}

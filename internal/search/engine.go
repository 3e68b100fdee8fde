package search

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Aman-CERP/docsearch/internal/embed"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

// EngineConfig holds engine-wide defaults.
type EngineConfig struct {
	DefaultTopK  int
	PreviewChars int
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithConfig overrides the engine defaults. Non-positive fields keep their default.
func WithConfig(cfg EngineConfig) EngineOption {
	return func(e *Engine) {
		if cfg.DefaultTopK > 0 {
			e.config.DefaultTopK = cfg.DefaultTopK
		}
		if cfg.PreviewChars > 0 {
			e.config.PreviewChars = cfg.PreviewChars
		}
	}
}

// WithLogger sets the logger used for per-query records.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// Engine embeds queries and looks them up in an immutable index.
// It holds no mutable state and is safe for concurrent use.
type Engine struct {
	index    *store.Index
	embedder embed.Embedder
	config   EngineConfig
	logger   *slog.Logger
}

// NewEngine creates an engine over index. An unloaded index is accepted;
// every search then fails with ErrIndexUnavailable.
func NewEngine(index *store.Index, embedder embed.Embedder, opts ...EngineOption) (*Engine, error) {
	if index == nil || embedder == nil {
		return nil, ErrNilDependency
	}
	e := &Engine{
		index:    index,
		embedder: embedder,
		config:   EngineConfig{DefaultTopK: DefaultTopK, PreviewChars: DefaultPreviewChars},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Index returns the index the engine searches.
func (e *Engine) Index() *store.Index {
	return e.index
}

// Search embeds query and returns up to TopK hits.
//
// With a section filter twice as many candidates are fetched and then
// filtered, so fewer than TopK results may come back even when the section
// has more matching chunks. Ranks are positions in the unfiltered candidate
// list.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	if !e.index.Loaded() {
		return nil, ErrIndexUnavailable
	}

	start := time.Now()
	topK := opts.TopK
	if topK <= 0 {
		topK = e.config.DefaultTopK
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.index.Dim() {
		return nil, &DimensionMismatchError{
			Expected:   e.index.Dim(),
			Got:        len(vec),
			IndexModel: e.index.Manifest().Model,
			QueryModel: e.embedder.ModelName(),
		}
	}

	k := topK
	if opts.Section != "" {
		k = topK * 2
	}

	scores, ids, err := e.index.Search(store.Normalize(vec), k)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		if id < 0 {
			continue
		}
		r := Result{Rank: i + 1, Score: scores[i], Source: unknownField, Section: unknownField}
		if meta, ok := e.index.Metadata(id); ok {
			r.Source = meta.Source
			r.Section = meta.Section
			r.Text = truncateRunes(meta.Text, e.config.PreviewChars)
		}
		results = append(results, r)
	}

	if opts.Section != "" {
		filtered := results[:0]
		for _, r := range results {
			if r.Section == opts.Section {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}
	if len(results) > topK {
		results = results[:topK]
	}

	e.logger.Debug("search complete",
		slog.String("query", query),
		slog.Int("top_k", topK),
		slog.String("section", opts.Section),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

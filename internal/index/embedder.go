package index

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/docsearch/internal/embed"
	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// CacheFile is the persistent embedding cache inside the index directory.
const CacheFile = "embeddings.db"

// EmbedderOptions selects the decorators applied to the provider during a build.
type EmbedderOptions struct {
	// CachePath enables the persistent cache when non-empty.
	CachePath string

	// RatePerSecond caps provider calls; 0 means unlimited.
	RatePerSecond float64

	// Retries is the number of extra attempts for transient failures; 0 disables retrying.
	Retries int
}

// WrapEmbedder layers the build decorators around inner, outermost first:
// disk cache, rate limiter, retry. Hits in the cache skip the limiter.
// Closing the result closes inner.
func WrapEmbedder(inner embed.Embedder, opts EmbedderOptions) (embed.Embedder, error) {
	e := inner

	if opts.Retries > 0 {
		cfg := errs.DefaultRetryConfig()
		cfg.MaxRetries = opts.Retries
		e = embed.NewRetrying(e, cfg)
	}

	if opts.RatePerSecond > 0 {
		e = embed.NewRateLimited(e, opts.RatePerSecond)
	}

	if opts.CachePath != "" {
		if err := os.MkdirAll(filepath.Dir(opts.CachePath), 0o755); err != nil {
			return nil, fmt.Errorf("create cache directory: %w", err)
		}
		cached, err := embed.NewDiskCache(e, opts.CachePath)
		if err != nil {
			slog.Warn("embedding cache unavailable, continuing without it",
				slog.String("path", opts.CachePath),
				slog.String("error", err.Error()))
			return e, nil
		}
		e = cached
	}

	return e, nil
}

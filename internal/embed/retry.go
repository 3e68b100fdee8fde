package embed

import (
	"context"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// Retrying retries transient provider failures (timeouts, connection
// errors, rate limiting) with exponential backoff. Permanent failures
// such as a missing model are returned immediately.
type Retrying struct {
	inner Embedder
	cfg   errs.RetryConfig
}

// NewRetrying wraps inner with cfg. A nil RetryIf is replaced with errs.IsRetryable.
func NewRetrying(inner Embedder, cfg errs.RetryConfig) *Retrying {
	if cfg.RetryIf == nil {
		cfg.RetryIf = errs.IsRetryable
	}
	return &Retrying{inner: inner, cfg: cfg}
}

// Embed calls the inner embedder until it succeeds or retries are exhausted.
func (r *Retrying) Embed(ctx context.Context, text string) ([]float32, error) {
	return errs.RetryWithResult(ctx, r.cfg, func() ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

func (r *Retrying) ModelName() string { return r.inner.ModelName() }
func (r *Retrying) Close() error      { return r.inner.Close() }
func (r *Retrying) Inner() Embedder   { return r.inner }

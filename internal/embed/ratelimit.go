package embed

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited spaces provider calls to at most perSecond requests per second.
type RateLimited struct {
	inner   Embedder
	limiter *rate.Limiter
}

// NewRateLimited wraps inner. perSecond <= 0 disables limiting.
func NewRateLimited(inner Embedder, perSecond float64) *RateLimited {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(limit, 1)}
}

// Embed waits for a token, then delegates.
func (r *RateLimited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Embed(ctx, text)
}

func (r *RateLimited) ModelName() string { return r.inner.ModelName() }
func (r *RateLimited) Close() error      { return r.inner.Close() }
func (r *RateLimited) Inner() Embedder   { return r.inner }

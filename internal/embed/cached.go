package embed

import (
	"context"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Cache configuration constants.
const (
	// DefaultEmbeddingCacheSize is the default number of query embeddings to keep.
	// At 4096 dimensions * 4 bytes * 256 entries ≈ 4MB memory.
	DefaultEmbeddingCacheSize = 256
)

// CachedEmbedder wraps an Embedder with an in-memory LRU so repeated
// queries against a running server skip the provider round trip.
type CachedEmbedder struct {
	inner Embedder
	cache *lru.Cache[uint64, []float32]
}

// NewCachedEmbedder creates a cached embedder wrapping the given embedder.
func NewCachedEmbedder(inner Embedder, cacheSize int) *CachedEmbedder {
	if cacheSize <= 0 {
		cacheSize = DefaultEmbeddingCacheSize
	}
	cache, _ := lru.New[uint64, []float32](cacheSize)
	return &CachedEmbedder{
		inner: inner,
		cache: cache,
	}
}

// cacheKey hashes model and text; the NUL separator keeps ("ab","c") and ("a","bc") apart.
func cacheKey(model, text string) uint64 {
	return xxhash.Sum64String(model + "\x00" + text)
}

// Embed returns the cached embedding if available, otherwise computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(c.inner.ModelName(), text)

	if vec, ok := c.cache.Get(key); ok {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, vec)
	return vec, nil
}

// Len reports the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// ModelName returns the model identifier (passthrough to inner).
func (c *CachedEmbedder) ModelName() string {
	return c.inner.ModelName()
}

// Close closes the inner embedder.
func (c *CachedEmbedder) Close() error {
	return c.inner.Close()
}

// Inner returns the underlying embedder.
func (c *CachedEmbedder) Inner() Embedder {
	return c.inner
}

package embed

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"go.etcd.io/bbolt"
)

var embeddingsBucket = []byte("embeddings")

// DiskCache persists embeddings in a bbolt file keyed by model and text,
// so rebuilding an index over unchanged documents does not call the provider again.
type DiskCache struct {
	inner Embedder
	db    *bbolt.DB

	hits   atomic.Int64
	misses atomic.Int64
}

// NewDiskCache opens (or creates) the cache file at path.
func NewDiskCache(inner Embedder, path string) (*DiskCache, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open embedding cache %s: %w", path, err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(embeddingsBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}

	return &DiskCache{inner: inner, db: db}, nil
}

// Embed returns the stored vector when present, otherwise calls the inner
// embedder and stores the result. A failed store is logged and ignored.
func (d *DiskCache) Embed(ctx context.Context, text string) ([]float32, error) {
	key := diskKey(d.inner.ModelName(), text)

	var vec []float32
	_ = d.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(embeddingsBucket).Get(key); raw != nil {
			vec = decodeVector(raw)
		}
		return nil
	})
	if vec != nil {
		d.hits.Add(1)
		return vec, nil
	}
	d.misses.Add(1)

	vec, err := d.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := d.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(embeddingsBucket).Put(key, encodeVector(vec))
	}); err != nil {
		slog.Warn("embedding cache write failed", slog.String("error", err.Error()))
	}
	return vec, nil
}

// Stats returns cache hits and misses since open.
func (d *DiskCache) Stats() (hits, misses int64) {
	return d.hits.Load(), d.misses.Load()
}

// ModelName returns the model identifier (passthrough to inner).
func (d *DiskCache) ModelName() string {
	return d.inner.ModelName()
}

// Close closes the cache file and the inner embedder.
func (d *DiskCache) Close() error {
	dbErr := d.db.Close()
	if err := d.inner.Close(); err != nil {
		return err
	}
	return dbErr
}

// Inner returns the underlying embedder.
func (d *DiskCache) Inner() Embedder {
	return d.inner
}

func diskKey(model, text string) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, cacheKey(model, text))
	return key
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// decodeVector copies out of the bbolt page; raw is only valid inside the transaction.
func decodeVector(raw []byte) []float32 {
	vec := make([]float32, len(raw)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return vec
}

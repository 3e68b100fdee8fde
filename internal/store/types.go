// Package store holds the similarity index over chunk embeddings and its
// on-disk artifacts.
//
// An index is built once from a batch of records, persisted as a set of
// files under a directory, and loaded read-only by the server. Id i of the
// similarity index always refers to entry i of the metadata.
package store

import (
	"fmt"
	"math"
	"strings"
)

// Backend names a SimilarityIndex implementation.
type Backend string

const (
	// BackendAuto picks the best ANN backend compiled into the binary.
	BackendAuto Backend = "auto"

	// BackendFlat is an exact inner-product scan.
	BackendFlat Backend = "flat"

	// BackendHNSW is a pure Go HNSW graph (coder/hnsw).
	BackendHNSW Backend = "hnsw"

	// BackendFaiss is a FAISS IVF index; requires building with -tags faiss.
	BackendFaiss Backend = "faiss"
)

// ParseBackend maps a configuration value onto a Backend.
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case "":
		return BackendAuto, nil
	case BackendAuto, BackendFlat, BackendHNSW, BackendFaiss:
		return b, nil
	default:
		return "", fmt.Errorf("unknown index backend %q (valid: auto, flat, hnsw, faiss)", s)
	}
}

// SimilarityIndex answers inner-product nearest neighbour queries over
// vectors addressed by dense ids 0..Count()-1.
//
// Search returns at most k (score, id) pairs in descending score order.
// Implementations may pad with id -1 when fewer than k neighbours are found;
// callers must skip those.
type SimilarityIndex interface {
	Dim() int
	Count() int
	Add(vectors [][]float32) error
	Search(query []float32, k int) (scores []float32, ids []int64, err error)
	Backend() Backend
}

// Metadata describes one indexed chunk.
type Metadata struct {
	Source  string `json:"source"`
	Section string `json:"section"`
	Text    string `json:"text"`
}

// Record is a chunk with its raw embedding, the unit of a build.
type Record struct {
	Source    string    `json:"source"`
	Section   string    `json:"section"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Metadata returns the record without its embedding.
func (r Record) Metadata() Metadata {
	return Metadata{Source: r.Source, Section: r.Section, Text: r.Text}
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}

// Normalize returns v scaled to unit L2 length.
// The magnitude is accumulated in float64; a zero vector is returned unchanged.
// Build, load and query all go through this function.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	normalizeInPlace(out)
	return out
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// PartitionCount returns the IVF list count for n vectors: clamp(n/10, 1, 100).
// It never exceeds n, so training always has enough points.
func PartitionCount(n int) int {
	return min(max(n/10, 1), 100)
}

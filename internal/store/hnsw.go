package store

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	"github.com/coder/hnsw"
	"github.com/google/renameio"
)

// HNSW defaults.
const (
	DefaultHNSWM        = 16
	DefaultHNSWEfSearch = 64
)

// ExactScanLimit is the corpus size at or below which searches compare the
// query against every vector instead of walking a graph. BackendAuto builds
// a flat index for corpora this small.
const ExactScanLimit = 1000

// HNSWConfig tunes the graph.
type HNSWConfig struct {
	M        int
	EfSearch int
}

// HNSWIndex implements SimilarityIndex using the coder/hnsw pure Go graph.
// Vectors are expected to be normalised, so cosine distance orders
// neighbours the same way inner product does.
type HNSWIndex struct {
	graph *hnsw.Graph[uint64]
	dim   int
	next  uint64
}

var _ SimilarityIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty graph for vectors of dimension dim.
func NewHNSWIndex(dim int, cfg HNSWConfig) *HNSWIndex {
	if cfg.M <= 0 {
		cfg.M = DefaultHNSWM
	}
	if cfg.EfSearch <= 0 {
		cfg.EfSearch = DefaultHNSWEfSearch
	}

	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{graph: graph, dim: dim}
}

func (h *HNSWIndex) Dim() int         { return h.dim }
func (h *HNSWIndex) Count() int       { return h.graph.Len() }
func (h *HNSWIndex) Backend() Backend { return BackendHNSW }

// Add inserts vectors with ids continuing from Count().
func (h *HNSWIndex) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != h.dim {
			return ErrDimensionMismatch{Expected: h.dim, Got: len(v)}
		}
	}
	for _, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		h.graph.Add(hnsw.MakeNode(h.next, vec))
		h.next++
	}
	return nil
}

// Search returns the k nearest neighbours scored by inner product. Small
// graphs, and requests for at least every vector, are answered exactly.
func (h *HNSWIndex) Search(query []float32, k int) ([]float32, []int64, error) {
	if len(query) != h.dim {
		return nil, nil, ErrDimensionMismatch{Expected: h.dim, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if h.graph.Len() == 0 {
		return []float32{}, []int64{}, nil
	}

	n := h.graph.Len()
	if n <= ExactScanLimit || k >= n {
		return h.scan(query, k)
	}

	// The graph stops once its result set of size k stops improving, so ask
	// for at least EfSearch candidates and keep the best k.
	nodes := h.graph.Search(query, max(k, h.graph.EfSearch))
	hits := make([]hnswHit, len(nodes))
	for i, node := range nodes {
		hits[i] = hnswHit{key: node.Key, score: dot(query, node.Value)}
	}
	return rankHits(hits, k)
}

type hnswHit struct {
	key   uint64
	score float32
}

// scan ranks every vector in the graph by inner product.
func (h *HNSWIndex) scan(query []float32, k int) ([]float32, []int64, error) {
	hits := make([]hnswHit, 0, h.graph.Len())
	for key := uint64(0); key < h.next; key++ {
		v, ok := h.graph.Lookup(key)
		if !ok {
			continue
		}
		hits = append(hits, hnswHit{key: key, score: dot(query, v)})
	}
	return rankHits(hits, k)
}

// rankHits orders by descending score, ties by ascending key, and keeps k.
func rankHits(hits []hnswHit, k int) ([]float32, []int64, error) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].key < hits[j].key
	})
	hits = hits[:min(k, len(hits))]

	scores := make([]float32, len(hits))
	ids := make([]int64, len(hits))
	for i, hit := range hits {
		scores[i] = hit.score
		ids[i] = int64(hit.key)
	}
	return scores, ids, nil
}

// WriteArtifact exports the graph atomically to path.
func (h *HNSWIndex) WriteArtifact(path string) error {
	pending, err := renameio.TempFile("", path)
	if err != nil {
		return fmt.Errorf("create hnsw artifact: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	w := bufio.NewWriter(pending)
	if err := h.graph.Export(w); err != nil {
		return fmt.Errorf("export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush graph: %w", err)
	}
	return pending.CloseAtomicallyReplace()
}

// LoadHNSWIndex imports a graph written by WriteArtifact. dim comes from the manifest.
func LoadHNSWIndex(path string, dim int, cfg HNSWConfig) (*HNSWIndex, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	h := NewHNSWIndex(dim, cfg)
	// coder/hnsw Import requires an io.ByteReader
	if err := h.graph.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("import graph: %w", err)
	}
	h.next = uint64(h.graph.Len())
	return h, nil
}

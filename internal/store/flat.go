package store

import (
	"fmt"
	"sort"
)

// FlatIndex is an exact inner-product index. Vectors are stored as given;
// callers normalise first.
type FlatIndex struct {
	dim     int
	vectors [][]float32
}

var _ SimilarityIndex = (*FlatIndex)(nil)

// NewFlatIndex creates an empty exact index of dimension dim.
func NewFlatIndex(dim int) *FlatIndex {
	return &FlatIndex{dim: dim}
}

func (f *FlatIndex) Dim() int         { return f.dim }
func (f *FlatIndex) Count() int       { return len(f.vectors) }
func (f *FlatIndex) Backend() Backend { return BackendFlat }

// Add appends vectors; ids continue from Count().
func (f *FlatIndex) Add(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != f.dim {
			return ErrDimensionMismatch{Expected: f.dim, Got: len(v)}
		}
	}
	for _, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		f.vectors = append(f.vectors, vec)
	}
	return nil
}

// Search scans every vector. Ties keep ascending id order.
func (f *FlatIndex) Search(query []float32, k int) ([]float32, []int64, error) {
	if len(query) != f.dim {
		return nil, nil, ErrDimensionMismatch{Expected: f.dim, Got: len(query)}
	}
	if k <= 0 {
		return nil, nil, fmt.Errorf("k must be positive, got %d", k)
	}

	type hit struct {
		id    int64
		score float32
	}
	hits := make([]hit, len(f.vectors))
	for i, v := range f.vectors {
		hits[i] = hit{id: int64(i), score: dot(query, v)}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	n := min(k, len(hits))
	scores := make([]float32, n)
	ids := make([]int64, n)
	for i := 0; i < n; i++ {
		scores[i] = hits[i].score
		ids[i] = hits[i].id
	}
	return scores, ids, nil
}

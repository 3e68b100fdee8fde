//go:build faiss

package store

import (
	"fmt"
	"os"
	"path/filepath"

	faiss "github.com/blevesearch/go-faiss"
)

// FaissIndex is an IVF index with inner-product metric backed by libfaiss.
type FaissIndex struct {
	idx *faiss.IndexImpl
}

var _ SimilarityIndex = (*FaissIndex)(nil)

func init() {
	registerBackend(annBackend{
		name:     BackendFaiss,
		artifact: artifactNames[BackendFaiss],
		build: func(vectors [][]float32, _ BuildOptions) (SimilarityIndex, error) {
			return NewFaissIVF(vectors)
		},
		load: func(path string, _ Manifest, _ BuildOptions) (SimilarityIndex, error) {
			return LoadFaissIndex(path)
		},
		write: func(idx SimilarityIndex, path string) error {
			f, ok := idx.(*FaissIndex)
			if !ok {
				return fmt.Errorf("expected *FaissIndex, got %T", idx)
			}
			return f.WriteArtifact(path)
		},
	})
}

// NewFaissIVF trains an IVF{nlist},Flat index on vectors and adds them.
// nlist is PartitionCount(len(vectors)).
func NewFaissIVF(vectors [][]float32) (*FaissIndex, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("cannot train an IVF index on zero vectors")
	}
	dim := len(vectors[0])
	nlist := PartitionCount(len(vectors))

	idx, err := faiss.IndexFactory(dim, fmt.Sprintf("IVF%d,Flat", nlist), faiss.MetricInnerProduct)
	if err != nil {
		return nil, fmt.Errorf("create ivf index: %w", err)
	}

	flat := flatten(vectors, dim)
	if err := idx.Train(flat); err != nil {
		idx.Delete()
		return nil, fmt.Errorf("train ivf index: %w", err)
	}
	f := &FaissIndex{idx: idx}
	if err := f.Add(vectors); err != nil {
		idx.Delete()
		return nil, err
	}
	return f, nil
}

// LoadFaissIndex reads an index written by WriteArtifact.
func LoadFaissIndex(path string) (*FaissIndex, error) {
	idx, err := faiss.ReadIndex(path, 0)
	if err != nil {
		return nil, fmt.Errorf("read faiss index: %w", err)
	}
	return &FaissIndex{idx: idx}, nil
}

func (f *FaissIndex) Dim() int         { return f.idx.D() }
func (f *FaissIndex) Count() int       { return int(f.idx.Ntotal()) }
func (f *FaissIndex) Backend() Backend { return BackendFaiss }

// Add appends vectors.
func (f *FaissIndex) Add(vectors [][]float32) error {
	dim := f.Dim()
	for _, v := range vectors {
		if len(v) != dim {
			return ErrDimensionMismatch{Expected: dim, Got: len(v)}
		}
	}
	return f.idx.Add(flatten(vectors, dim))
}

// Search returns up to k neighbours; missing slots carry id -1.
func (f *FaissIndex) Search(query []float32, k int) ([]float32, []int64, error) {
	if len(query) != f.Dim() {
		return nil, nil, ErrDimensionMismatch{Expected: f.Dim(), Got: len(query)}
	}
	if k <= 0 {
		return nil, nil, fmt.Errorf("k must be positive, got %d", k)
	}
	return f.idx.Search(query, int64(k))
}

// WriteArtifact writes the index next to path and renames it into place.
// libfaiss writes by file name, so the temp file lives in the target directory.
func (f *FaissIndex) WriteArtifact(path string) error {
	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err := faiss.WriteIndex(f.idx, tmp); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write faiss index: %w", err)
	}
	return os.Rename(tmp, path)
}

// Close frees the native index.
func (f *FaissIndex) Close() error {
	f.idx.Delete()
	return nil
}

func flatten(vectors [][]float32, dim int) []float32 {
	out := make([]float32, 0, len(vectors)*dim)
	for _, v := range vectors {
		out = append(out, v...)
	}
	return out
}

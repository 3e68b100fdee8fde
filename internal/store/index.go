package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// BuildOptions configures Build.
type BuildOptions struct {
	Backend Backend
	Model   string
	HNSW    HNSWConfig
}

// Index is a loaded, immutable similarity index with its chunk metadata.
// The zero value (and the result of Unloaded) answers Loaded() == false.
type Index struct {
	sim      SimilarityIndex
	meta     []Metadata
	records  []Record // raw records, present only on freshly built indexes
	manifest Manifest
}

// Unloaded returns an index that holds nothing. Search on it fails.
func Unloaded() *Index {
	return &Index{}
}

// NewIndex pairs a similarity index with its metadata.
// The two must have the same length.
func NewIndex(sim SimilarityIndex, meta []Metadata, manifest Manifest) (*Index, error) {
	if sim.Count() != len(meta) {
		return nil, errs.New(errs.ErrCodeArtifactMismatch,
			fmt.Sprintf("index holds %d vectors but metadata has %d entries", sim.Count(), len(meta)), nil)
	}
	manifest.Backend = sim.Backend()
	manifest.Count = sim.Count()
	manifest.Dim = sim.Dim()
	return &Index{sim: sim, meta: meta, manifest: manifest}, nil
}

// Build normalises every embedding and builds the requested backend.
// An ANN backend that fails to build falls back to the flat index with a warning.
func Build(records []Record, opts BuildOptions) (*Index, error) {
	if len(records) == 0 {
		return nil, errs.New(errs.ErrCodeIndexFailed, "no records to index", nil)
	}

	dim := len(records[0].Embedding)
	if dim == 0 {
		return nil, errs.New(errs.ErrCodeIndexFailed, "record 0 has an empty embedding", nil)
	}

	vectors := make([][]float32, len(records))
	meta := make([]Metadata, len(records))
	for i, r := range records {
		if len(r.Embedding) != dim {
			return nil, errs.New(errs.ErrCodeDimensionMismatch,
				fmt.Sprintf("record %d (%s): %v", i, r.Source, ErrDimensionMismatch{Expected: dim, Got: len(r.Embedding)}), nil)
		}
		vectors[i] = Normalize(r.Embedding)
		meta[i] = r.Metadata()
	}

	backend, err := Resolve(opts.Backend)
	if err != nil {
		return nil, errs.New(errs.ErrCodeConfigInvalid, err.Error(), err)
	}
	if isAuto(opts.Backend) && len(records) <= ExactScanLimit {
		backend = BackendFlat
	}

	var sim SimilarityIndex
	if b, ok := annBackends[backend]; ok {
		sim, err = b.build(vectors, opts)
		if err != nil {
			slog.Warn("ann index build failed, using flat index",
				slog.String("backend", string(backend)),
				slog.String("error", err.Error()))
			sim = nil
		}
	}
	if sim == nil {
		flat := NewFlatIndex(dim)
		if err := flat.Add(vectors); err != nil {
			return nil, errs.New(errs.ErrCodeIndexFailed, "build flat index", err)
		}
		sim = flat
	}

	ix, err := NewIndex(sim, meta, Manifest{
		BuildID:   uuid.NewString(),
		Model:     opts.Model,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if sim.Backend() == BackendFaiss {
		ix.manifest.Partitions = PartitionCount(len(records))
	}
	ix.records = records
	return ix, nil
}

// Loaded reports whether the index can answer queries.
func (ix *Index) Loaded() bool {
	return ix != nil && ix.sim != nil
}

// Count returns the number of indexed chunks.
func (ix *Index) Count() int {
	if !ix.Loaded() {
		return 0
	}
	return ix.sim.Count()
}

// Dim returns the vector dimension, 0 when unloaded.
func (ix *Index) Dim() int {
	if !ix.Loaded() {
		return 0
	}
	return ix.sim.Dim()
}

// Backend returns the similarity backend in use.
func (ix *Index) Backend() Backend {
	if !ix.Loaded() {
		return ""
	}
	return ix.sim.Backend()
}

// Manifest returns the build description.
func (ix *Index) Manifest() Manifest {
	if ix == nil {
		return Manifest{}
	}
	return ix.manifest
}

// Metadata returns the chunk for id.
func (ix *Index) Metadata(id int64) (Metadata, bool) {
	if !ix.Loaded() || id < 0 || id >= int64(len(ix.meta)) {
		return Metadata{}, false
	}
	return ix.meta[id], true
}

// Search queries the similarity index. The query must already be normalised.
func (ix *Index) Search(query []float32, k int) ([]float32, []int64, error) {
	if !ix.Loaded() {
		return nil, nil, errs.New(errs.ErrCodeIndexNotFound, "index not loaded", nil)
	}
	return ix.sim.Search(query, k)
}

package store

import (
	"fmt"
	"sort"
)

// annBackend describes an approximate index implementation and its artifact.
type annBackend struct {
	name     Backend
	artifact string
	build    func(vectors [][]float32, opts BuildOptions) (SimilarityIndex, error)
	load     func(path string, m Manifest, opts BuildOptions) (SimilarityIndex, error)
	write    func(idx SimilarityIndex, path string) error
}

// Artifact file names of every ANN backend, compiled in or not.
// Save removes the ones it does not write so a stale artifact is never loaded.
var artifactNames = map[Backend]string{
	BackendFaiss: "docs.faiss",
	BackendHNSW:  "docs.hnsw",
}

// annPreference is the order BackendAuto tries.
var annPreference = []Backend{BackendFaiss, BackendHNSW}

var annBackends = map[Backend]annBackend{}

func registerBackend(b annBackend) {
	annBackends[b.name] = b
}

func init() {
	registerBackend(annBackend{
		name:     BackendHNSW,
		artifact: artifactNames[BackendHNSW],
		build: func(vectors [][]float32, opts BuildOptions) (SimilarityIndex, error) {
			idx := NewHNSWIndex(len(vectors[0]), opts.HNSW)
			if err := idx.Add(vectors); err != nil {
				return nil, err
			}
			return idx, nil
		},
		load: func(path string, m Manifest, opts BuildOptions) (SimilarityIndex, error) {
			if m.Dim <= 0 {
				return nil, fmt.Errorf("hnsw artifact needs a manifest with the vector dimension")
			}
			return LoadHNSWIndex(path, m.Dim, opts.HNSW)
		},
		write: func(idx SimilarityIndex, path string) error {
			h, ok := idx.(*HNSWIndex)
			if !ok {
				return fmt.Errorf("expected *HNSWIndex, got %T", idx)
			}
			return h.WriteArtifact(path)
		},
	})
}

// Available lists the backends compiled into this binary, flat first.
func Available() []Backend {
	out := []Backend{BackendFlat}
	names := make([]Backend, 0, len(annBackends))
	for name := range annBackends {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return append(out, names...)
}

// Resolve turns BackendAuto into a concrete backend and rejects backends
// that are not compiled in.
func Resolve(b Backend) (Backend, error) {
	switch b {
	case BackendFlat:
		return b, nil
	case BackendAuto, "":
		for _, name := range annPreference {
			if _, ok := annBackends[name]; ok {
				return name, nil
			}
		}
		return BackendFlat, nil
	default:
		if _, ok := annBackends[b]; ok {
			return b, nil
		}
		if b == BackendFaiss {
			return "", fmt.Errorf("backend faiss is not compiled in (rebuild with -tags faiss)")
		}
		return "", fmt.Errorf("unknown index backend %q", b)
	}
}

func isAuto(b Backend) bool {
	return b == BackendAuto || b == ""
}

// ArtifactFiles lists every file name a build may write, manifest first.
func ArtifactFiles() []string {
	files := []string{ManifestFile, MetadataFile, VectorsFile}
	for _, b := range annPreference {
		files = append(files, artifactNames[b])
	}
	return files
}

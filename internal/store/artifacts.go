package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/renameio"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// Artifact file names inside the index directory.
const (
	MetadataFile = "docs_metadata.json"
	VectorsFile  = "docs_vectors.json"
	ManifestFile = "manifest.json"
	LockFile     = ".build.lock"

	// DefaultDir is the index directory used when none is configured.
	DefaultDir = "vectordb"
)

// Manifest describes one build of the artifact set.
type Manifest struct {
	BuildID    string    `json:"build_id"`
	Backend    Backend   `json:"backend"`
	Count      int       `json:"count"`
	Dim        int       `json:"dim"`
	Model      string    `json:"model"`
	Partitions int       `json:"partitions,omitempty"`
	CreatedAt  time.Time `json:"created_at"`

	// Checksums maps each artifact file written with this manifest to the
	// hex xxhash64 of its contents. Load refuses files that do not match.
	Checksums map[string]string `json:"checksums,omitempty"`
}

// Save writes the artifact set of a freshly built index to dir.
// Callers building concurrently with other processes hold a BuildLock on dir.
func Save(dir string, ix *Index) error {
	if !ix.Loaded() {
		return errs.New(errs.ErrCodeIndexFailed, "cannot save an unloaded index", nil)
	}
	if ix.records == nil {
		return errs.New(errs.ErrCodeIndexFailed, "index was not built in this process; nothing to save", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errs.IOError("create index directory", err).WithDetail("path", dir)
	}

	backend := ix.sim.Backend()
	written := []string{MetadataFile, VectorsFile}
	if b, ok := annBackends[backend]; ok {
		if err := b.write(ix.sim, filepath.Join(dir, b.artifact)); err != nil {
			return errs.IOError("write index artifact", err).WithDetail("backend", string(backend))
		}
		written = append(written, b.artifact)
	}
	for name, artifact := range artifactNames {
		if name == backend {
			continue
		}
		if err := os.Remove(filepath.Join(dir, artifact)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("failed to remove stale artifact", slog.String("file", artifact), slog.String("error", err.Error()))
		}
	}

	if err := writeJSON(filepath.Join(dir, MetadataFile), ix.meta, true); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(dir, VectorsFile), ix.records, false); err != nil {
		return err
	}

	sums := make(map[string]string, len(written))
	for _, name := range written {
		sum, err := checksumFile(filepath.Join(dir, name))
		if err != nil {
			return errs.IOError("checksum "+name, err).WithDetail("path", dir)
		}
		sums[name] = sum
	}
	ix.manifest.Checksums = sums

	// Manifest last: it names the set the other files belong to.
	return writeJSON(filepath.Join(dir, ManifestFile), ix.manifest, true)
}

// Load opens the artifact set in dir, trying in order:
//
//  1. the ANN artifact named by the manifest (or any compiled-in ANN
//     artifact when there is no manifest) plus the metadata file;
//  2. the raw vectors file, normalised into a flat index;
//  3. nothing, returning an unloaded index.
//
// A missing or corrupt artifact is logged and the next step is tried.
func Load(dir string, hnswCfg HNSWConfig) *Index {
	manifest, err := ReadManifest(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("ignoring unreadable manifest", slog.String("dir", dir), slog.String("error", err.Error()))
	}

	if ix, err := loadANN(dir, manifest, hnswCfg); err != nil {
		slog.Warn("ann index not loaded", slog.String("dir", dir), slog.String("error", err.Error()))
	} else if ix != nil {
		return ix
	}

	ix, err := loadVectors(dir, manifest)
	if err == nil {
		return ix
	}
	if !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("raw vectors not loaded", slog.String("dir", dir), slog.String("error", err.Error()))
	}

	return Unloaded()
}

// loadANN returns (nil, nil) when no candidate artifact exists.
func loadANN(dir string, m Manifest, hnswCfg HNSWConfig) (*Index, error) {
	candidates := annPreference
	if m.Backend != "" {
		candidates = []Backend{m.Backend}
	}

	for _, name := range candidates {
		b, ok := annBackends[name]
		if !ok {
			continue
		}
		path := filepath.Join(dir, b.artifact)
		if _, err := os.Stat(path); err != nil {
			continue
		}

		if err := verifyChecksums(dir, m, b.artifact, MetadataFile); err != nil {
			return nil, err
		}
		meta, err := readMetadata(filepath.Join(dir, MetadataFile))
		if err != nil {
			return nil, fmt.Errorf("read metadata: %w", err)
		}
		sim, err := b.load(path, m, BuildOptions{HNSW: hnswCfg})
		if err != nil {
			return nil, errs.New(errs.ErrCodeCorruptIndex, "load "+b.artifact, err)
		}
		if m.Count != 0 && m.Count != sim.Count() {
			return nil, errs.New(errs.ErrCodeArtifactMismatch,
				fmt.Sprintf("manifest count %d disagrees with %s count %d", m.Count, b.artifact, sim.Count()), nil)
		}
		return NewIndex(sim, meta, m)
	}
	return nil, nil
}

func loadVectors(dir string, m Manifest) (*Index, error) {
	data, err := os.ReadFile(filepath.Join(dir, VectorsFile))
	if err != nil {
		return nil, err
	}
	if err := verifyChecksums(dir, m, VectorsFile); err != nil {
		return nil, err
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errs.New(errs.ErrCodeCorruptIndex, "parse "+VectorsFile, err)
	}
	if len(records) == 0 || len(records[0].Embedding) == 0 {
		return nil, errs.New(errs.ErrCodeCorruptIndex, VectorsFile+" holds no vectors", nil)
	}

	flat := NewFlatIndex(len(records[0].Embedding))
	meta := make([]Metadata, len(records))
	vectors := make([][]float32, len(records))
	for i, r := range records {
		vectors[i] = Normalize(r.Embedding)
		meta[i] = r.Metadata()
	}
	if err := flat.Add(vectors); err != nil {
		return nil, errs.New(errs.ErrCodeCorruptIndex, "load "+VectorsFile, err)
	}

	m.Partitions = 0
	return NewIndex(flat, meta, m)
}

// ReadManifest reads dir/manifest.json.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	return m, nil
}

// verifyChecksums checks files against the manifest. Manifests without
// checksums, and directories without a manifest, are accepted as they are.
func verifyChecksums(dir string, m Manifest, names ...string) error {
	if m.Checksums == nil {
		return nil
	}
	for _, name := range names {
		want, ok := m.Checksums[name]
		if !ok {
			return errs.New(errs.ErrCodeArtifactMismatch,
				fmt.Sprintf("%s is not part of build %s", name, m.BuildID), nil)
		}
		got, err := checksumFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if got != want {
			return errs.New(errs.ErrCodeArtifactMismatch,
				fmt.Sprintf("%s does not belong to build %s", name, m.BuildID), nil)
		}
	}
	return nil
}

func checksumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	h := xxhash.New()
	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

func readMetadata(path string) ([]Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta []Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return meta, nil
}

func writeJSON(path string, v any, indent bool) error {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return errs.New(errs.ErrCodeInternal, "encode "+filepath.Base(path), err)
	}
	if err := renameio.WriteFile(path, data, 0o644); err != nil {
		return errs.IOError("write "+filepath.Base(path), err).WithDetail("path", path)
	}
	return nil
}

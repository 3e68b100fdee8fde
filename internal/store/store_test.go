package store

import (
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

func threeRecords() []Record {
	return []Record{
		{Source: "opencode/a", Section: "opencode", Text: "alpha", Embedding: []float32{1, 0}},
		{Source: "openclaw/b", Section: "openclaw", Text: "beta", Embedding: []float32{0, 1}},
		{Source: "opencode/c", Section: "opencode", Text: "gamma", Embedding: []float32{0.7, 0.7}},
	}
}

func randomRecords(r *rand.Rand, n, dim int) []Record {
	records := make([]Record, n)
	for i := range records {
		v := make([]float32, dim)
		for j := range v {
			v[j] = float32(r.NormFloat64())
		}
		records[i] = Record{Source: "s/doc", Section: "s", Text: "chunk", Embedding: v}
	}
	return records
}

// ============================================================================
// Normalize
// ============================================================================

func TestNormalize_UnitLength(t *testing.T) {
	v := Normalize([]float32{3, 4})

	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)
}

func TestNormalize_Idempotent(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		v := make([]float32, 16)
		for j := range v {
			v[j] = float32(r.NormFloat64() * 100)
		}
		once := Normalize(v)
		twice := Normalize(once)
		for j := range once {
			assert.InDelta(t, once[j], twice[j], 1e-6)
		}
	}
}

func TestNormalize_ZeroVectorUnchanged(t *testing.T) {
	assert.Equal(t, []float32{0, 0, 0}, Normalize([]float32{0, 0, 0}))
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	in := []float32{2, 0}
	_ = Normalize(in)
	assert.Equal(t, []float32{2, 0}, in)
}

func TestPartitionCount(t *testing.T) {
	tests := map[int]int{1: 1, 9: 1, 10: 1, 25: 2, 999: 99, 1000: 100, 50000: 100}
	for n, want := range tests {
		got := PartitionCount(n)
		assert.Equal(t, want, got, "n=%d", n)
		assert.LessOrEqual(t, got, n)
	}
}

// ============================================================================
// Backends
// ============================================================================

func TestBackends_ThreeVectorScenario(t *testing.T) {
	for _, backend := range []Backend{BackendFlat, BackendHNSW} {
		t.Run(string(backend), func(t *testing.T) {
			// Given: three vectors built into the backend
			ix, err := Build(threeRecords(), BuildOptions{Backend: backend})
			require.NoError(t, err)
			require.Equal(t, backend, ix.Backend())

			// When: querying along the first axis
			scores, ids, err := ix.Search(Normalize([]float32{1, 0}), 2)

			// Then: a is first with score 1, c second with score ~0.707
			require.NoError(t, err)
			require.Len(t, ids, 2)
			assert.Equal(t, []int64{0, 2}, ids)
			assert.InDelta(t, 1.0, scores[0], 1e-5)
			assert.InDelta(t, math.Sqrt2/2, scores[1], 1e-4)
		})
	}
}

func TestBackends_KLargerThanCorpus(t *testing.T) {
	for _, backend := range []Backend{BackendFlat, BackendHNSW} {
		t.Run(string(backend), func(t *testing.T) {
			ix, err := Build(threeRecords(), BuildOptions{Backend: backend})
			require.NoError(t, err)

			scores, ids, err := ix.Search(Normalize([]float32{0, 1}), 10)

			require.NoError(t, err)
			assert.Len(t, ids, 3)
			assert.Len(t, scores, 3)
			for i := 1; i < len(scores); i++ {
				assert.GreaterOrEqual(t, scores[i-1], scores[i])
			}
		})
	}
}

func TestHNSW_AgreesWithFlatOnTopHit(t *testing.T) {
	// Given: the same random corpus in both backends
	r := rand.New(rand.NewSource(42))
	records := randomRecords(r, 200, 16)
	flat, err := Build(records, BuildOptions{Backend: BackendFlat})
	require.NoError(t, err)
	graph, err := Build(records, BuildOptions{Backend: BackendHNSW, HNSW: HNSWConfig{EfSearch: 200}})
	require.NoError(t, err)

	// When/Then: querying with an indexed vector finds itself in both
	for _, id := range []int{0, 57, 199} {
		q := Normalize(records[id].Embedding)
		_, fIDs, err := flat.Search(q, 1)
		require.NoError(t, err)
		_, hIDs, err := graph.Search(q, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(id), fIDs[0])
		assert.Equal(t, fIDs[0], hIDs[0])
	}
}

func TestHNSW_TopKMatchesFlatOnSmallCorpora(t *testing.T) {
	for _, n := range []int{20, 100, 200} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			// Given: a random corpus indexed by both backends with default tuning
			r := rand.New(rand.NewSource(int64(n)))
			records := randomRecords(r, n, 32)
			flat, err := Build(records, BuildOptions{Backend: BackendFlat})
			require.NoError(t, err)
			graph, err := Build(records, BuildOptions{Backend: BackendHNSW})
			require.NoError(t, err)

			// When/Then: the top 5 agree in order and score for every query
			for _, id := range []int{0, n / 2, n - 1} {
				q := Normalize(records[id].Embedding)
				fScores, fIDs, err := flat.Search(q, 5)
				require.NoError(t, err)
				hScores, hIDs, err := graph.Search(q, 5)
				require.NoError(t, err)
				assert.Equal(t, fIDs, hIDs, "query %d", id)
				assert.InDeltaSlice(t, fScores, hScores, 1e-6)
			}
		})
	}
}

func TestHNSW_KAboveCountReturnsEveryVector(t *testing.T) {
	// Given: an hnsw index of 300 vectors
	r := rand.New(rand.NewSource(7))
	graph, err := Build(randomRecords(r, 300, 16), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)

	// When: asking for more neighbours than exist
	scores, ids, err := graph.Search(Normalize(randomRecords(r, 1, 16)[0].Embedding), 310)

	// Then: every vector comes back once, best first
	require.NoError(t, err)
	require.Len(t, ids, 300)
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		seen[id] = true
	}
	assert.Len(t, seen, 300)
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1], scores[i])
	}
}

func TestHNSW_GraphSearchAboveScanLimit(t *testing.T) {
	// Given: a graph larger than the exact scan limit
	r := rand.New(rand.NewSource(11))
	records := randomRecords(r, ExactScanLimit+200, 8)
	graph, err := Build(records, BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)
	require.Equal(t, BackendHNSW, graph.Backend())

	// When: searching with an indexed vector
	scores, ids, err := graph.Search(Normalize(records[42].Embedding), 5)

	// Then: k results ranked by score, led by the vector itself
	require.NoError(t, err)
	require.Len(t, ids, 5)
	assert.Equal(t, int64(42), ids[0])
	for i := 1; i < len(scores); i++ {
		assert.GreaterOrEqual(t, scores[i-1], scores[i])
	}
}

func TestBuild_AutoUsesFlatForSmallCorpora(t *testing.T) {
	r := rand.New(rand.NewSource(3))

	small, err := Build(randomRecords(r, 20, 8), BuildOptions{})
	require.NoError(t, err)
	assert.Equal(t, BackendFlat, small.Backend())
	assert.Equal(t, BackendFlat, small.Manifest().Backend)

	large, err := Build(randomRecords(r, ExactScanLimit+1, 8), BuildOptions{Backend: BackendAuto})
	require.NoError(t, err)
	assert.NotEqual(t, BackendFlat, large.Backend())
}

func TestFlatIndex_DimensionChecks(t *testing.T) {
	f := NewFlatIndex(3)

	err := f.Add([][]float32{{1, 2}})
	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)

	_, _, err = f.Search([]float32{1}, 1)
	assert.ErrorAs(t, err, &dm)

	_, _, err = f.Search([]float32{1, 0, 0}, 0)
	assert.Error(t, err)
}

func TestResolve(t *testing.T) {
	b, err := Resolve(BackendAuto)
	require.NoError(t, err)
	assert.NotEqual(t, BackendAuto, b)

	b, err = Resolve(BackendFlat)
	require.NoError(t, err)
	assert.Equal(t, BackendFlat, b)

	_, err = Resolve("annoy")
	assert.Error(t, err)

	assert.Contains(t, Available(), BackendFlat)
	assert.Contains(t, Available(), BackendHNSW)
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendAuto, b)

	b, err = ParseBackend(" HNSW ")
	require.NoError(t, err)
	assert.Equal(t, BackendHNSW, b)

	_, err = ParseBackend("lsh")
	assert.Error(t, err)
}

// ============================================================================
// Build and Index
// ============================================================================

func TestBuild_RejectsEmptyAndMixedDimensions(t *testing.T) {
	_, err := Build(nil, BuildOptions{})
	assert.True(t, errs.HasCode(err, errs.ErrCodeIndexFailed))

	records := threeRecords()
	records[1].Embedding = []float32{1, 2, 3}
	_, err = Build(records, BuildOptions{Backend: BackendFlat})
	assert.True(t, errs.HasCode(err, errs.ErrCodeDimensionMismatch))
}

func TestBuild_ManifestAndMetadata(t *testing.T) {
	ix, err := Build(threeRecords(), BuildOptions{Backend: BackendFlat, Model: "qwen3-embedding:8b"})
	require.NoError(t, err)

	m := ix.Manifest()
	assert.NotEmpty(t, m.BuildID)
	assert.Equal(t, 3, m.Count)
	assert.Equal(t, 2, m.Dim)
	assert.Equal(t, "qwen3-embedding:8b", m.Model)
	assert.Equal(t, BackendFlat, m.Backend)

	meta, ok := ix.Metadata(1)
	require.True(t, ok)
	assert.Equal(t, Metadata{Source: "openclaw/b", Section: "openclaw", Text: "beta"}, meta)
	_, ok = ix.Metadata(3)
	assert.False(t, ok)
	_, ok = ix.Metadata(-1)
	assert.False(t, ok)
}

func TestNewIndex_CountMismatch(t *testing.T) {
	f := NewFlatIndex(2)
	require.NoError(t, f.Add([][]float32{{1, 0}}))

	_, err := NewIndex(f, []Metadata{{}, {}}, Manifest{})

	assert.True(t, errs.HasCode(err, errs.ErrCodeArtifactMismatch))
}

func TestUnloaded(t *testing.T) {
	ix := Unloaded()

	assert.False(t, ix.Loaded())
	assert.Equal(t, 0, ix.Count())
	assert.Equal(t, 0, ix.Dim())
	_, _, err := ix.Search([]float32{1}, 1)
	assert.True(t, errs.HasCode(err, errs.ErrCodeIndexNotFound))

	var nilIx *Index
	assert.False(t, nilIx.Loaded())
}

// ============================================================================
// Save / Load
// ============================================================================

func TestSaveLoad_RoundTrip(t *testing.T) {
	for _, backend := range []Backend{BackendFlat, BackendHNSW} {
		t.Run(string(backend), func(t *testing.T) {
			// Given: a saved index
			dir := t.TempDir()
			built, err := Build(threeRecords(), BuildOptions{Backend: backend, Model: "m"})
			require.NoError(t, err)
			require.NoError(t, Save(dir, built))

			// When: loading it back
			loaded := Load(dir, HNSWConfig{})

			// Then: the same backend, manifest and answers come back
			require.True(t, loaded.Loaded())
			assert.Equal(t, backend, loaded.Backend())
			assert.Equal(t, built.Manifest().BuildID, loaded.Manifest().BuildID)
			assert.Equal(t, 3, loaded.Count())

			q := Normalize([]float32{0.1, 1})
			wantScores, wantIDs, err := built.Search(q, 3)
			require.NoError(t, err)
			gotScores, gotIDs, err := loaded.Search(q, 3)
			require.NoError(t, err)
			assert.Equal(t, wantIDs, gotIDs)
			assert.InDeltaSlice(t, wantScores, gotScores, 1e-6)
		})
	}
}

func TestSave_WritesArtifactSet(t *testing.T) {
	dir := t.TempDir()
	ix, err := Build(threeRecords(), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)

	require.NoError(t, Save(dir, ix))

	for _, name := range []string{"docs.hnsw", MetadataFile, VectorsFile, ManifestFile} {
		assert.FileExists(t, filepath.Join(dir, name))
	}

	// metadata is an indented array without embeddings
	data, err := os.ReadFile(filepath.Join(dir, MetadataFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n")
	var meta []map[string]any
	require.NoError(t, json.Unmarshal(data, &meta))
	require.Len(t, meta, 3)
	assert.Equal(t, "opencode/a", meta[0]["source"])
	assert.NotContains(t, meta[0], "embedding")

	// vectors hold the raw, unnormalised embeddings
	data, err = os.ReadFile(filepath.Join(dir, VectorsFile))
	require.NoError(t, err)
	var records []Record
	require.NoError(t, json.Unmarshal(data, &records))
	assert.Equal(t, []float32{0.7, 0.7}, records[2].Embedding)
}

func TestSave_RemovesStaleArtifact(t *testing.T) {
	dir := t.TempDir()
	ix, err := Build(threeRecords(), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)
	require.NoError(t, Save(dir, ix))

	flat, err := Build(threeRecords(), BuildOptions{Backend: BackendFlat})
	require.NoError(t, err)
	require.NoError(t, Save(dir, flat))

	assert.NoFileExists(t, filepath.Join(dir, "docs.hnsw"))
	assert.Equal(t, BackendFlat, Load(dir, HNSWConfig{}).Backend())
}

func TestSave_RejectsLoadedIndex(t *testing.T) {
	dir := t.TempDir()
	ix, err := Build(threeRecords(), BuildOptions{Backend: BackendFlat})
	require.NoError(t, err)
	require.NoError(t, Save(dir, ix))

	assert.Error(t, Save(t.TempDir(), Load(dir, HNSWConfig{})))
	assert.Error(t, Save(t.TempDir(), Unloaded()))
}

func TestLoad_FallsBackToVectors(t *testing.T) {
	// Given: an ANN artifact whose metadata disagrees in length
	dir := t.TempDir()
	ix, err := Build(threeRecords(), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)
	require.NoError(t, Save(dir, ix))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte(`[{"source":"x","section":"y","text":"z"}]`), 0o644))

	// When: loading
	loaded := Load(dir, HNSWConfig{})

	// Then: the raw vectors are used as an exact index
	require.True(t, loaded.Loaded())
	assert.Equal(t, BackendFlat, loaded.Backend())
	assert.Equal(t, 3, loaded.Count())
	meta, _ := loaded.Metadata(2)
	assert.Equal(t, "gamma", meta.Text)
}

// renamedRecords has the shape of threeRecords with different text.
func renamedRecords() []Record {
	records := threeRecords()
	for i := range records {
		records[i].Text = "stale " + records[i].Text
	}
	return records
}

func TestLoad_StaleMetadataWithSameCountIsRejected(t *testing.T) {
	// Given: a saved hnsw build whose metadata is replaced by an older
	// build of the same size, as an interrupted save could leave it
	dir, older := t.TempDir(), t.TempDir()
	prev, err := Build(renamedRecords(), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)
	require.NoError(t, Save(older, prev))
	ix, err := Build(threeRecords(), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)
	require.NoError(t, Save(dir, ix))

	stale, err := os.ReadFile(filepath.Join(older, MetadataFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), stale, 0o644))

	// When: loading
	loaded := Load(dir, HNSWConfig{})

	// Then: the stale metadata is never paired with the graph; the
	// current raw vectors serve instead
	require.True(t, loaded.Loaded())
	assert.Equal(t, BackendFlat, loaded.Backend())
	meta, ok := loaded.Metadata(0)
	require.True(t, ok)
	assert.Equal(t, "alpha", meta.Text)
}

func TestLoad_MixedBuildIsUnloaded(t *testing.T) {
	// Given: metadata and vectors from another build next to this manifest
	dir, older := t.TempDir(), t.TempDir()
	prev, err := Build(renamedRecords(), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)
	require.NoError(t, Save(older, prev))
	ix, err := Build(threeRecords(), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)
	require.NoError(t, Save(dir, ix))

	for _, name := range []string{MetadataFile, VectorsFile} {
		data, err := os.ReadFile(filepath.Join(older, name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
	}

	// When/Then: nothing from the mixed set loads
	assert.False(t, Load(dir, HNSWConfig{}).Loaded())
}

func TestSave_ManifestRecordsChecksums(t *testing.T) {
	dir := t.TempDir()
	ix, err := Build(threeRecords(), BuildOptions{Backend: BackendHNSW})
	require.NoError(t, err)
	require.NoError(t, Save(dir, ix))

	m, err := ReadManifest(dir)
	require.NoError(t, err)

	assert.Len(t, m.Checksums, 3)
	for _, name := range []string{"docs.hnsw", MetadataFile, VectorsFile} {
		assert.Len(t, m.Checksums[name], 16, name)
	}
}

func TestLoad_VectorsOnlyFromOtherTools(t *testing.T) {
	// Given: only a raw vectors file, as written when no ANN library is available
	dir := t.TempDir()
	raw := `[{"source":"opencode/a","section":"opencode","text":"alpha","embedding":[2,0]},
	         {"source":"openclaw/b","section":"openclaw","text":"beta","embedding":[0,5]}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorsFile), []byte(raw), 0o644))

	loaded := Load(dir, HNSWConfig{})

	// Then: vectors are normalised on load
	require.True(t, loaded.Loaded())
	scores, ids, err := loaded.Search([]float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids)
	assert.InDelta(t, 1.0, scores[0], 1e-6)
}

func TestLoad_EmptyDirIsUnloaded(t *testing.T) {
	assert.False(t, Load(t.TempDir(), HNSWConfig{}).Loaded())
	assert.False(t, Load(filepath.Join(t.TempDir(), "missing"), HNSWConfig{}).Loaded())
}

func TestLoad_CorruptEverythingIsUnloaded(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "docs.hnsw"), []byte("garbage"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, MetadataFile), []byte(`[]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, VectorsFile), []byte(`{not json`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestFile), []byte(`{"backend":"hnsw","dim":2}`), 0o644))

	assert.False(t, Load(dir, HNSWConfig{}).Loaded())
}

// ============================================================================
// BuildLock
// ============================================================================

func TestBuildLock_Exclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "vectordb")
	first := NewBuildLock(dir)
	require.NoError(t, first.TryLock())
	defer func() { _ = first.Unlock() }()

	second := NewBuildLock(dir)
	err := second.TryLock()

	assert.True(t, errs.HasCode(err, errs.ErrCodeIndexLocked))
	assert.Equal(t, filepath.Join(dir, LockFile), first.Path())
}

func TestBuildLock_ReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()
	first := NewBuildLock(dir)
	require.NoError(t, first.TryLock())
	require.NoError(t, first.Unlock())
	require.NoError(t, first.Unlock())

	second := NewBuildLock(dir)
	require.NoError(t, second.TryLock())
	assert.NoError(t, second.Unlock())
}

func TestArtifactFiles(t *testing.T) {
	files := ArtifactFiles()
	assert.Equal(t, []string{ManifestFile, MetadataFile, VectorsFile, "docs.faiss", "docs.hnsw"}, files)
}

package preflight

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
	"github.com/Aman-CERP/docsearch/internal/store"
)

// ============================================================================
// Test doubles
// ============================================================================

type stubEmbedder struct {
	model    string
	probeErr error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}
func (s *stubEmbedder) ModelName() string           { return s.model }
func (s *stubEmbedder) Close() error                { return nil }
func (s *stubEmbedder) Probe(context.Context) error { return s.probeErr }

func writeIndex(t *testing.T, dir, model string) {
	t.Helper()
	ix, err := store.Build([]store.Record{
		{Source: "guide/a.md", Section: "guide", Text: "alpha", Embedding: []float32{1, 0, 0}},
		{Source: "guide/b.md", Section: "guide", Text: "beta", Embedding: []float32{0, 1, 0}},
	}, store.BuildOptions{Backend: store.BackendFlat, Model: model})
	require.NoError(t, err)
	require.NoError(t, store.Save(dir, ix))
}

func writeDocs(t *testing.T, dir string) {
	t.Helper()
	for rel, body := range map[string]string{
		"guide/intro.md": "# Intro",
		"api/ref.txt":    "reference",
		"api/more.md":    "more",
	} {
		path := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
}

// ============================================================================
// Status
// ============================================================================

func TestCheckStatus_String(t *testing.T) {
	assert.Equal(t, "PASS", StatusPass.String())
	assert.Equal(t, "WARN", StatusWarn.String())
	assert.Equal(t, "FAIL", StatusFail.String())
	assert.Equal(t, "UNKNOWN", CheckStatus(9).String())
}

func TestCheckResult_IsCritical(t *testing.T) {
	assert.True(t, CheckResult{Required: true, Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Required: false, Status: StatusFail}.IsCritical())
	assert.False(t, CheckResult{Required: true, Status: StatusWarn}.IsCritical())
}

func TestSummaryStatus(t *testing.T) {
	c := New(Target{})

	assert.Equal(t, "ready", c.SummaryStatus([]CheckResult{{Status: StatusPass}}))
	assert.Equal(t, "ready_with_warnings", c.SummaryStatus([]CheckResult{{Status: StatusPass}, {Status: StatusWarn}}))
	assert.Equal(t, "failed", c.SummaryStatus([]CheckResult{{Status: StatusWarn}, {Status: StatusFail, Required: true}}))
}

// ============================================================================
// Individual checks
// ============================================================================

func TestCheckProvider(t *testing.T) {
	t.Run("not configured warns", func(t *testing.T) {
		r := New(Target{}).CheckProvider(context.Background())
		assert.Equal(t, StatusWarn, r.Status)
	})

	t.Run("probe ok passes with model", func(t *testing.T) {
		r := New(Target{Embedder: &stubEmbedder{model: "nomic"}}).CheckProvider(context.Background())
		assert.Equal(t, StatusPass, r.Status)
		assert.Contains(t, r.Message, "nomic")
	})

	t.Run("probe failure carries the suggestion", func(t *testing.T) {
		probeErr := errs.New(errs.ErrCodeNetworkUnavailable, "ollama is not reachable", nil).
			WithSuggestion("Start it with 'ollama serve'")
		r := New(Target{Embedder: &stubEmbedder{model: "nomic", probeErr: probeErr}}).CheckProvider(context.Background())

		assert.Equal(t, StatusFail, r.Status)
		assert.True(t, r.IsCritical())
		assert.Equal(t, "ollama is not reachable", r.Message)
		assert.Equal(t, "Start it with 'ollama serve'", r.Details)
	})
}

func TestCheckDocs(t *testing.T) {
	t.Run("counts documents per section", func(t *testing.T) {
		dir := t.TempDir()
		writeDocs(t, dir)

		r := New(Target{DocsDir: dir}).CheckDocs(context.Background())

		assert.Equal(t, StatusPass, r.Status)
		assert.Equal(t, "3 documents in 2 sections", r.Message)
		assert.Equal(t, "api (2), guide (1)", r.Details)
	})

	t.Run("missing dir warns", func(t *testing.T) {
		r := New(Target{DocsDir: filepath.Join(t.TempDir(), "nope")}).CheckDocs(context.Background())
		assert.Equal(t, StatusWarn, r.Status)
		assert.False(t, r.IsCritical())
	})
}

func TestCheckIndex(t *testing.T) {
	t.Run("missing index fails", func(t *testing.T) {
		r := New(Target{IndexDir: t.TempDir()}).CheckIndex()
		assert.Equal(t, StatusFail, r.Status)
		assert.Contains(t, r.Details, "docsearch index")
	})

	t.Run("loaded index passes", func(t *testing.T) {
		dir := t.TempDir()
		writeIndex(t, dir, "nomic")

		r := New(Target{IndexDir: dir, Embedder: &stubEmbedder{model: "nomic"}}).CheckIndex()

		assert.Equal(t, StatusPass, r.Status)
		assert.Equal(t, "2 chunks, 3 dims, flat backend", r.Message)
	})

	t.Run("model mismatch warns", func(t *testing.T) {
		dir := t.TempDir()
		writeIndex(t, dir, "nomic")

		r := New(Target{IndexDir: dir, Embedder: &stubEmbedder{model: "other"}}).CheckIndex()

		assert.Equal(t, StatusWarn, r.Status)
		assert.Contains(t, r.Message, "nomic")
		assert.Contains(t, r.Message, "other")
	})
}

func TestCheckWritePermissions(t *testing.T) {
	t.Run("missing index dir uses the nearest parent", func(t *testing.T) {
		base := t.TempDir()
		r := New(Target{IndexDir: filepath.Join(base, "a", "b")}).CheckWritePermissions()

		assert.Equal(t, StatusPass, r.Status)
		assert.Contains(t, r.Message, base)

		entries, err := os.ReadDir(base)
		require.NoError(t, err)
		assert.Empty(t, entries, "probe file should be removed")
	})
}

func TestCheckDiskSpace_TempDir(t *testing.T) {
	r := New(Target{IndexDir: t.TempDir()}).CheckDiskSpace()
	assert.Contains(t, r.Message, "minimum: 100 MB")
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 bytes", formatBytes(512))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "100.0 MB", formatBytes(MinDiskSpaceBytes))
	assert.Equal(t, "2.0 GB", formatBytes(2<<30))
}

// ============================================================================
// RunAll and output
// ============================================================================

func TestRunAll_OrderAndReady(t *testing.T) {
	// Given: docs, a matching index and a healthy provider
	docsDir, indexDir := t.TempDir(), t.TempDir()
	writeDocs(t, docsDir)
	writeIndex(t, indexDir, "nomic")
	c := New(Target{Embedder: &stubEmbedder{model: "nomic"}, DocsDir: docsDir, IndexDir: indexDir})

	// When: running every check
	results := c.RunAll(context.Background())

	// Then: results keep their declared order
	names := make([]string, len(results))
	for i, r := range results {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"embedding_provider", "docs", "index", "write_permissions", "disk_space"}, names)
	for _, r := range results[:4] {
		assert.Equal(t, StatusPass, r.Status, r.Name)
	}
}

func TestPrintResults(t *testing.T) {
	var buf bytes.Buffer
	c := New(Target{}, WithOutput(&buf), WithVerbose(true))

	c.PrintResults([]CheckResult{
		{Name: "embedding_provider", Status: StatusPass, Message: "model nomic available"},
		{Name: "index", Status: StatusFail, Required: true, Message: "no index in vectordb", Details: "Run 'docsearch index' to build it"},
		{Name: "docs", Status: StatusWarn, Message: "docs not readable"},
	})

	out := buf.String()
	assert.Contains(t, out, "docsearch doctor")
	assert.Contains(t, out, "[PASS] embedding_provider: model nomic available")
	assert.Contains(t, out, "       Run 'docsearch index' to build it")
	assert.Contains(t, out, "Status: FAILED")
	assert.Contains(t, out, "1 error(s):\n  - index: no index in vectordb")
	assert.Contains(t, out, "1 warning(s):\n  - docs: docs not readable")
	assert.True(t, c.HasCriticalFailures([]CheckResult{{Required: true, Status: StatusFail}}))
}

func TestCheckStatus_TextRoundTrip(t *testing.T) {
	for _, s := range []CheckStatus{StatusPass, StatusWarn, StatusFail} {
		text, err := s.MarshalText()
		require.NoError(t, err)
		var got CheckStatus
		require.NoError(t, got.UnmarshalText(text))
		assert.Equal(t, s, got)
	}
	var bad CheckStatus
	assert.Error(t, bad.UnmarshalText([]byte("MAYBE")))
}

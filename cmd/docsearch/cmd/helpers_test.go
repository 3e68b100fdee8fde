package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// envVars are cleared so the host environment never leaks into a test.
var envVars = []string{
	"OLLAMA_HOST", "EMBED_MODEL", "SEARCH_TOP_K",
	"DOCSEARCH_PROVIDER", "DOCSEARCH_EMBED_TIMEOUT", "DOCSEARCH_DOCS_DIR", "DOCSEARCH_INDEX_DIR",
	"DOCSEARCH_BACKEND", "DOCSEARCH_LOG_LEVEL", "DOCSEARCH_LOG_FILE", "DOCSEARCH_SECTIONS",
	"OPENAI_API_KEY", "OPENAI_BASE_URL", "GEMINI_API_KEY",
}

// testProject chdirs into a fresh project with its own user config dir
// and a fake Ollama, and returns the project dir.
func testProject(t *testing.T) string {
	t.Helper()
	for _, name := range envVars {
		t.Setenv(name, "")
	}
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Chdir(dir)

	srv := fakeOllama(t)
	t.Setenv("OLLAMA_HOST", srv.URL)
	t.Setenv("EMBED_MODEL", "test-embed")
	return dir
}

// fakeOllama embeds texts mentioning alpha, beta or neither onto three axes.
func fakeOllama(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		vec := []float64{0.1, 0.1, 1}
		switch {
		case strings.Contains(req.Input, "alpha"):
			vec = []float64{1, 0.1, 0.1}
		case strings.Contains(req.Input, "beta"):
			vec = []float64{0.1, 1, 0.1}
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "test-embed", "embeddings": [][]float64{vec}})
	})
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprint(w, `{"models":[{"name":"test-embed:latest"}]}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeDoc(t *testing.T, rel, body string) {
	t.Helper()
	path := filepath.Join("docs", rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

// runCLI executes the root command with args and returns stdout and stderr.
func runCLI(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

// buildIndex writes two sections and indexes them with the flat backend.
func buildIndex(t *testing.T) {
	t.Helper()
	writeDoc(t, "opencode/agents.md", "# Agents\n\nalpha agents run tools.")
	writeDoc(t, "openclaw/skills.md", "# Skills\n\nbeta skills extend claws.")
	_, stderr, err := runCLI(t, "", "index", "--no-tui", "--backend", "flat")
	require.NoError(t, err, stderr)
}

// frame encodes one Content-Length framed message.
func frame(body string) string {
	return fmt.Sprintf("Content-Length: %d\r\n\r\n%s", len(body), body)
}

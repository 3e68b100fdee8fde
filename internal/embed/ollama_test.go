package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// fakeOllama serves /api/embed and /api/tags.
func fakeOllama(t *testing.T, embed http.HandlerFunc, models ...string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/embed", embed)
	mux.HandleFunc("/api/tags", func(w http.ResponseWriter, _ *http.Request) {
		list := OllamaModelListResponse{}
		for _, m := range models {
			list.Models = append(list.Models, OllamaModelInfo{Name: m})
		}
		_ = json.NewEncoder(w).Encode(list)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// ============================================================================
// Embed
// ============================================================================

func TestOllamaEmbedder_Embed_ReturnsVector(t *testing.T) {
	// Given: a server that echoes a fixed embedding and records the request
	var got OllamaEmbedRequest
	srv := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"m","embeddings":[[0.5,-1.25,3]]}`))
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL + "/", Model: "nomic-embed-text"})
	defer func() { _ = e.Close() }()

	// When: embedding a text
	vec, err := e.Embed(context.Background(), "hello world")

	// Then: the vector is converted to float32 and the request is well formed
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1.25, 3}, vec)
	assert.Equal(t, "nomic-embed-text", got.Model)
	assert.Equal(t, "hello world", got.Input)
}

func TestOllamaEmbedder_Embed_NonSuccessStatus(t *testing.T) {
	// Given: a server answering 500
	srv := fakeOllama(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "m"})

	// When: embedding
	_, err := e.Embed(context.Background(), "text")

	// Then: a ProviderError with status and the failure code is returned
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	assert.Equal(t, ProviderOllama, pe.Provider)
	assert.True(t, errs.HasCode(err, errs.ErrCodeEmbeddingFailed))
	assert.Contains(t, err.Error(), "model crashed")
	assert.False(t, errs.IsRetryable(err))
}

func TestOllamaEmbedder_Embed_MalformedBody(t *testing.T) {
	srv := fakeOllama(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings": not json`))
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "m"})

	_, err := e.Embed(context.Background(), "text")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, errs.HasCode(err, errs.ErrCodeEmbeddingFailed))
}

func TestOllamaEmbedder_Embed_EmptyEmbeddings(t *testing.T) {
	srv := fakeOllama(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"embeddings":[]}`))
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "m"})

	_, err := e.Embed(context.Background(), "text")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "empty embedding")
}

func TestOllamaEmbedder_Embed_Timeout(t *testing.T) {
	// Given: a server slower than the configured timeout
	release := make(chan struct{})
	srv := fakeOllama(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "m", Timeout: 50 * time.Millisecond})

	// When: embedding
	_, err := e.Embed(context.Background(), "text")

	// Then: the call fails with a retryable timeout
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, errs.HasCode(err, errs.ErrCodeNetworkTimeout))
	assert.True(t, errs.IsRetryable(err))
}

func TestOllamaEmbedder_Embed_Unreachable(t *testing.T) {
	// Given: a host nothing listens on
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()
	e := NewOllamaEmbedder(OllamaConfig{Host: host, Model: "m"})

	_, err := e.Embed(context.Background(), "text")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.StatusCode)
	assert.True(t, errs.HasCode(err, errs.ErrCodeNetworkUnavailable))
}

func TestOllamaEmbedder_Embed_BlankTextRejected(t *testing.T) {
	// Given: a server that must not be called
	srv := fakeOllama(t, func(http.ResponseWriter, *http.Request) {
		t.Fatal("provider called for blank text")
	})
	e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: "m"})

	_, err := e.Embed(context.Background(), " \n\t")

	// Then: a coded input error, not a provider failure
	assert.True(t, errs.HasCode(err, errs.ErrCodeQueryEmpty))
	var pe *ProviderError
	assert.False(t, errors.As(err, &pe))
}

func TestOllamaEmbedder_Embed_AfterClose(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1", Model: "m"})
	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "text")

	assert.Error(t, err)
}

func TestNewOllamaEmbedder_Defaults(t *testing.T) {
	e := NewOllamaEmbedder(OllamaConfig{})

	assert.Equal(t, DefaultOllamaHost, e.Host())
	assert.Equal(t, DefaultOllamaModel, e.ModelName())
	assert.Equal(t, DefaultTimeout, e.config.Timeout)
}

// ============================================================================
// Probe
// ============================================================================

func TestOllamaEmbedder_Probe(t *testing.T) {
	noEmbed := func(http.ResponseWriter, *http.Request) {}

	tests := []struct {
		name      string
		model     string
		installed []string
		wantErr   bool
	}{
		{"exact match", "nomic-embed-text", []string{"nomic-embed-text"}, false},
		{"tag suffix matches", "qwen3-embedding:8b", []string{"llama3:latest", "qwen3-embedding:8b"}, false},
		{"name contained in installed", "nomic-embed-text", []string{"nomic-embed-text:latest"}, false},
		{"missing model", "qwen3-embedding:8b", []string{"llama3:latest"}, true},
		{"no models", "m", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := fakeOllama(t, noEmbed, tt.installed...)
			e := NewOllamaEmbedder(OllamaConfig{Host: srv.URL, Model: tt.model})

			err := e.Probe(context.Background())

			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			ae, ok := errs.As(err)
			require.True(t, ok)
			assert.Equal(t, "Run: ollama pull "+tt.model, ae.Suggestion)
		})
	}
}

func TestOllamaEmbedder_Probe_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()
	e := NewOllamaEmbedder(OllamaConfig{Host: host, Model: "m"})

	err := e.Probe(context.Background())

	require.Error(t, err)
	ae, ok := errs.As(err)
	require.True(t, ok)
	assert.True(t, strings.Contains(ae.Suggestion, "ollama serve"))
}

func TestProviderError_Unwrap(t *testing.T) {
	pe := newProviderError(ProviderOllama, "m", 503, errs.ErrCodeEmbeddingFailed, "busy", nil)

	assert.True(t, errors.Is(pe, errs.New(errs.ErrCodeEmbeddingFailed, "", nil)))
	assert.Equal(t, "ollama embedding failed (status 503): busy", pe.Error())
}

package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// OllamaEmbedder generates embeddings using Ollama's HTTP API
type OllamaEmbedder struct {
	client    *http.Client
	transport *http.Transport // Store for connection cleanup
	config    OllamaConfig

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time
var (
	_ Embedder = (*OllamaEmbedder)(nil)
	_ Prober   = (*OllamaEmbedder)(nil)
)

// NewOllamaEmbedder creates a new Ollama embedder.
// It does not contact Ollama; use Probe for a readiness check.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = OllamaPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		IdleConnTimeout:     30 * time.Second,
	}

	// No client-level timeout: each call carries its own context deadline.
	return &OllamaEmbedder{
		client:    &http.Client{Transport: transport},
		transport: transport,
		config:    cfg,
	}
}

// Embed generates the embedding for a single text with one /api/embed call.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, newProviderError(ProviderOllama, e.config.Model, 0, errs.ErrCodeInternal, "embedder is closed", nil)
	}
	if err := checkText(text); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	body, err := json.Marshal(OllamaEmbedRequest{Model: e.config.Model, Input: text})
	if err != nil {
		return nil, newProviderError(ProviderOllama, e.config.Model, 0, errs.ErrCodeInternal, "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.Host+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, newProviderError(ProviderOllama, e.config.Model, 0, errs.ErrCodeInternal, "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, ProviderOllama, e.config.Model, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newProviderError(ProviderOllama, e.config.Model, resp.StatusCode, errs.ErrCodeEmbeddingFailed,
			strings.TrimSpace(string(respBody)), nil)
	}

	var result OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		if ctx.Err() != nil {
			return nil, transportError(ctx, ProviderOllama, e.config.Model, err)
		}
		return nil, newProviderError(ProviderOllama, e.config.Model, resp.StatusCode, errs.ErrCodeEmbeddingFailed,
			"malformed response", err)
	}

	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, newProviderError(ProviderOllama, e.config.Model, resp.StatusCode, errs.ErrCodeEmbeddingFailed,
			"empty embedding returned", nil)
	}

	return toFloat32(result.Embeddings[0]), nil
}

// ListModels returns the models installed in Ollama (/api/tags).
func (e *OllamaEmbedder) ListModels(ctx context.Context) ([]OllamaModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, ProviderOllama, e.config.Model, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, newProviderError(ProviderOllama, e.config.Model, resp.StatusCode, errs.ErrCodeNetworkUnavailable,
			strings.TrimSpace(string(body)), nil)
	}

	var result OllamaModelListResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, newProviderError(ProviderOllama, e.config.Model, resp.StatusCode, errs.ErrCodeEmbeddingFailed,
			"malformed model list", err)
	}

	return result.Models, nil
}

// Probe checks that Ollama answers and that the configured model is installed.
// A model matches when an installed name contains the configured name.
func (e *OllamaEmbedder) Probe(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, OllamaProbeTimeout)
	defer cancel()

	models, err := e.ListModels(ctx)
	if err != nil {
		if pe, ok := err.(*ProviderError); ok {
			pe.Err.WithSuggestion("Start Ollama (ollama serve) or set OLLAMA_HOST")
		}
		return err
	}

	names := make([]string, len(models))
	for i, m := range models {
		names[i] = m.Name
		if strings.Contains(m.Name, e.config.Model) {
			return nil
		}
	}

	pe := newProviderError(ProviderOllama, e.config.Model, 0, errs.ErrCodeEmbeddingFailed,
		fmt.Sprintf("model %s not found (available: %s)", e.config.Model, strings.Join(names, ", ")), nil)
	pe.Err.WithSuggestion("Run: ollama pull " + e.config.Model)
	return pe
}

// Host returns the configured Ollama endpoint.
func (e *OllamaEmbedder) Host() string {
	return e.config.Host
}

// ModelName returns the configured model.
func (e *OllamaEmbedder) ModelName() string {
	return e.config.Model
}

// Close releases idle connections.
func (e *OllamaEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.transport.CloseIdleConnections()
	return nil
}

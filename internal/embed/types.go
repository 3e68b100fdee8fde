// Package embed turns text into dense vectors through an external embedding provider.
//
// Every provider makes exactly one remote call per Embed and never retries;
// retry, caching and rate limiting are decorators the caller opts into.
// Vectors are returned raw: normalization belongs to the index.
package embed

import (
	"context"
	"fmt"
	"time"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderOllama uses the local Ollama HTTP API (default)
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses the OpenAI embeddings endpoint
	ProviderOpenAI ProviderType = "openai"

	// ProviderGemini uses the Gemini embedContent API
	ProviderGemini ProviderType = "gemini"
)

// DefaultTimeout bounds a single provider call.
// Large embedding models on a cold Ollama instance routinely take over a minute.
const DefaultTimeout = 120 * time.Second

// Embedder maps one text to one vector.
type Embedder interface {
	// Embed returns the embedding of text. Provider failures are *ProviderError;
	// blank text is refused with ErrCodeQueryEmpty before any request is made.
	Embed(ctx context.Context, text string) ([]float32, error)

	// ModelName returns the model identifier, used in cache keys and manifests.
	ModelName() string

	// Close releases resources.
	Close() error
}

// Prober is implemented by embedders that can check provider readiness
// without producing an embedding.
type Prober interface {
	Probe(ctx context.Context) error
}

// ProviderError reports a failed embedding call: transport failure, timeout,
// non-success status or malformed response.
type ProviderError struct {
	Provider   ProviderType
	Model      string
	StatusCode int // 0 when no HTTP response was received
	Err        *errs.Error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s embedding failed (status %d): %s", e.Provider, e.StatusCode, e.Err.Message)
	}
	return fmt.Sprintf("%s embedding failed: %s", e.Provider, e.Err.Message)
}

// Unwrap exposes the coded error so errors.Is and retry predicates see it.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// newProviderError builds a ProviderError around a coded error.
func newProviderError(provider ProviderType, model string, status int, code, msg string, cause error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		Model:      model,
		StatusCode: status,
		Err:        errs.New(code, msg, cause).WithDetail("model", model),
	}
}

// transportError classifies a failed round trip as timeout or unavailable.
func transportError(ctx context.Context, provider ProviderType, model string, err error) *ProviderError {
	if ctx.Err() == context.DeadlineExceeded {
		return newProviderError(provider, model, 0, errs.ErrCodeNetworkTimeout, "request timed out", err)
	}
	return newProviderError(provider, model, 0, errs.ErrCodeNetworkUnavailable, err.Error(), err)
}

// checkText rejects input that no provider should be asked to embed.
func checkText(text string) error {
	for _, r := range text {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return nil
		}
	}
	return errs.New(errs.ErrCodeQueryEmpty, "cannot embed empty text", nil)
}

// toFloat32 converts a JSON-decoded vector.
func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

package embed

import (
	"context"
	"errors"
	"time"

	"google.golang.org/genai"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// DefaultGeminiModel is used when the provider is gemini and no model is configured.
const DefaultGeminiModel = "text-embedding-004"

// GeminiConfig configures the Gemini embedder.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
}

// GeminiEmbedder calls the Gemini embedContent API.
type GeminiEmbedder struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

var _ Embedder = (*GeminiEmbedder)(nil)

// NewGeminiEmbedder creates a Gemini embedder. An API key is required.
func NewGeminiEmbedder(ctx context.Context, cfg GeminiConfig) (*GeminiEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errs.ConfigError("GEMINI_API_KEY is not set", nil).
			WithSuggestion("Export GEMINI_API_KEY or switch embeddings.provider to ollama")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errs.ConfigError("failed to create gemini client", err)
	}

	return &GeminiEmbedder{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

// Embed returns the embedding of text with one EmbedContent call.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, nil)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			code := errs.ErrCodeEmbeddingFailed
			if apiErr.Code == 429 {
				code = errs.ErrCodeRateLimited
			}
			return nil, newProviderError(ProviderGemini, e.model, apiErr.Code, code, apiErr.Message, err)
		}
		return nil, transportError(ctx, ProviderGemini, e.model, err)
	}

	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, newProviderError(ProviderGemini, e.model, 0, errs.ErrCodeEmbeddingFailed, "empty embedding returned", nil)
	}
	return resp.Embeddings[0].Values, nil
}

// ModelName returns the configured model.
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}

// Close is a no-op; the genai client has nothing to release.
func (e *GeminiEmbedder) Close() error {
	return nil
}

package embed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	errs "github.com/Aman-CERP/docsearch/internal/errors"
)

// DefaultOpenAIModel is used when the provider is openai and no model is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures the OpenAI embedder.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional, for compatible gateways
	Model   string
	Timeout time.Duration
}

// OpenAIEmbedder calls the OpenAI embeddings endpoint.
type OpenAIEmbedder struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI embedder. An API key is required.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errs.ConfigError("OPENAI_API_KEY is not set", nil).
			WithSuggestion("Export OPENAI_API_KEY or switch embeddings.provider to ollama")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: cfg.Timeout,
	}, nil
}

// Embed returns the embedding of text with one CreateEmbeddings call.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := checkText(text); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(e.model),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			code := errs.ErrCodeEmbeddingFailed
			if apiErr.HTTPStatusCode == 429 {
				code = errs.ErrCodeRateLimited
			}
			return nil, newProviderError(ProviderOpenAI, e.model, apiErr.HTTPStatusCode, code, apiErr.Message, err)
		}
		return nil, transportError(ctx, ProviderOpenAI, e.model, err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, newProviderError(ProviderOpenAI, e.model, 0, errs.ErrCodeEmbeddingFailed, "empty embedding returned", nil)
	}
	return resp.Data[0].Embedding, nil
}

// ModelName returns the configured model.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Close is a no-op; the client holds no resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}

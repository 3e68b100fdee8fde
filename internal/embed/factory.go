package embed

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Options selects and configures a provider.
type Options struct {
	Provider   ProviderType
	Model      string
	OllamaHost string
	Timeout    time.Duration

	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string
}

// ParseProvider maps a configuration value onto a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch p := ProviderType(strings.ToLower(strings.TrimSpace(s))); p {
	case "", ProviderOllama:
		return ProviderOllama, nil
	case ProviderOpenAI, ProviderGemini:
		return p, nil
	default:
		return "", fmt.Errorf("unknown embedding provider %q (valid: ollama, openai, gemini)", s)
	}
}

// New creates the embedder for opts.Provider. It never contacts the provider;
// callers that want a readiness check use Probe.
func New(ctx context.Context, opts Options) (Embedder, error) {
	provider, err := ParseProvider(string(opts.Provider))
	if err != nil {
		return nil, err
	}

	switch provider {
	case ProviderOpenAI:
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:  opts.OpenAIKey,
			BaseURL: opts.OpenAIBaseURL,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		})
	case ProviderGemini:
		return NewGeminiEmbedder(ctx, GeminiConfig{
			APIKey:  opts.GeminiKey,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		})
	default:
		return NewOllamaEmbedder(OllamaConfig{
			Host:    opts.OllamaHost,
			Model:   opts.Model,
			Timeout: opts.Timeout,
		}), nil
	}
}

// Probe runs the readiness check of the innermost embedder that supports one.
// Embedders without a probe are assumed ready.
func Probe(ctx context.Context, e Embedder) error {
	for e != nil {
		if p, ok := e.(Prober); ok {
			return p.Probe(ctx)
		}
		w, ok := e.(interface{ Inner() Embedder })
		if !ok {
			return nil
		}
		e = w.Inner()
	}
	return nil
}

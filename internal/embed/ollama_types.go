package embed

import "time"

// Ollama API constants
const (
	// DefaultOllamaHost is the default Ollama API endpoint
	DefaultOllamaHost = "http://localhost:11434"

	// DefaultOllamaModel is the embedding model the index is built with by default
	DefaultOllamaModel = "qwen3-embedding:8b"

	// OllamaProbeTimeout bounds the /api/tags readiness check
	OllamaProbeTimeout = 5 * time.Second

	// OllamaPoolSize for connection pool
	OllamaPoolSize = 2
)

// OllamaConfig configures the Ollama embedder
type OllamaConfig struct {
	// Host is the Ollama API endpoint (default: http://localhost:11434)
	Host string

	// Model is the embedding model to use (default: qwen3-embedding:8b)
	Model string

	// Timeout bounds each /api/embed call (default: 120s)
	Timeout time.Duration

	// PoolSize for HTTP connection pool (default: 2)
	PoolSize int
}

// DefaultOllamaConfig returns sensible defaults
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		Host:     DefaultOllamaHost,
		Model:    DefaultOllamaModel,
		Timeout:  DefaultTimeout,
		PoolSize: OllamaPoolSize,
	}
}

// OllamaEmbedRequest is the Ollama /api/embed request
type OllamaEmbedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// OllamaEmbedResponse is the Ollama /api/embed response
type OllamaEmbedResponse struct {
	Model      string      `json:"model"`
	Embeddings [][]float64 `json:"embeddings"`
}

// OllamaModelListResponse is the Ollama /api/tags response
type OllamaModelListResponse struct {
	Models []OllamaModelInfo `json:"models"`
}

// OllamaModelInfo describes an installed model
type OllamaModelInfo struct {
	Name       string    `json:"name"`
	ModifiedAt time.Time `json:"modified_at"`
	Size       int64     `json:"size"`
}

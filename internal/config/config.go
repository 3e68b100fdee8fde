// Package config loads docsearch settings from defaults, YAML files,
// a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// File names.
const (
	UserConfigFile    = "config.yaml"
	ProjectConfigFile = ".docsearch.yaml"
	EnvFile           = ".env"
	appName           = "docsearch"
)

// Limits shared with the search_docs tool.
const (
	MinTopK = 1
	MaxTopK = 50
)

// Config is the complete docsearch configuration.
type Config struct {
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Docs       DocsConfig       `yaml:"docs" json:"docs"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// EmbeddingsConfig selects and tunes the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "ollama", "openai" or "gemini".
	Provider string `yaml:"provider" json:"provider"`

	// Model is the provider model name. Empty uses the provider default.
	Model string `yaml:"model" json:"model"`

	OllamaHost    string `yaml:"ollama_host" json:"ollama_host"`
	OpenAIBaseURL string `yaml:"openai_base_url,omitempty" json:"openai_base_url,omitempty"`

	// Timeout bounds a single embedding call ("120s").
	Timeout string `yaml:"timeout" json:"timeout"`

	// CacheSize is the in-memory query embedding cache used while serving.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// DiskCache keeps build embeddings in <index dir>/embeddings.db.
	DiskCache bool `yaml:"disk_cache" json:"disk_cache"`

	// RateLimit caps provider calls per second during a build; 0 is unlimited.
	RateLimit float64 `yaml:"rate_limit" json:"rate_limit"`

	// Retries for transient failures during a build; 0 keeps single attempts.
	Retries int `yaml:"retries" json:"retries"`

	// API keys come from the environment only.
	OpenAIKey string `yaml:"-" json:"-"`
	GeminiKey string `yaml:"-" json:"-"`
}

// ChunkingConfig sizes chunk windows in characters.
type ChunkingConfig struct {
	Size    int `yaml:"size" json:"size"`
	Overlap int `yaml:"overlap" json:"overlap"`
}

// IndexConfig locates and shapes the index artifacts.
type IndexConfig struct {
	Dir          string `yaml:"dir" json:"dir"`
	Backend      string `yaml:"backend" json:"backend"`
	HNSWM        int    `yaml:"hnsw_m" json:"hnsw_m"`
	HNSWEfSearch int    `yaml:"hnsw_ef_search" json:"hnsw_ef_search"`
}

// SearchConfig configures queries.
type SearchConfig struct {
	TopK         int      `yaml:"top_k" json:"top_k"`
	Sections     []string `yaml:"sections" json:"sections"`
	PreviewChars int      `yaml:"preview_chars" json:"preview_chars"`
}

// DocsConfig locates the documentation corpus.
type DocsConfig struct {
	Dir        string   `yaml:"dir" json:"dir"`
	Extensions []string `yaml:"extensions" json:"extensions"`
	Exclude    []string `yaml:"exclude,omitempty" json:"exclude,omitempty"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`

	// File enables the rotating log file when non-empty.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// LoadOptions tells Load where to look.
type LoadOptions struct {
	// ProjectDir holds .docsearch.yaml and .env (default: working directory).
	ProjectDir string

	// ConfigDir overrides the user config directory.
	ConfigDir string
}

// NewConfig returns the defaults.
func NewConfig() *Config {
	return &Config{
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "qwen3-embedding:8b",
			OllamaHost: "http://localhost:11434",
			Timeout:    "120s",
			CacheSize:  256,
			DiskCache:  true,
		},
		Chunking: ChunkingConfig{
			Size:    2000,
			Overlap: 256,
		},
		Index: IndexConfig{
			Dir:          "vectordb",
			Backend:      "auto",
			HNSWM:        16,
			HNSWEfSearch: 64,
		},
		Search: SearchConfig{
			TopK:         5,
			Sections:     []string{"opencode", "openclaw", "oh-my-opencode"},
			PreviewChars: 500,
		},
		Docs: DocsConfig{
			Dir:        "docs",
			Extensions: []string{".md", ".markdown", ".txt", ".html", ".htm"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// UserConfigDir returns the user configuration directory. It follows XDG:
//   - override, when non-empty
//   - $XDG_CONFIG_HOME/docsearch
//   - ~/.config/docsearch
func UserConfigDir(override string) string {
	if override != "" {
		return override
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", appName)
	}
	return filepath.Join(home, ".config", appName)
}

// UserConfigPath returns the user config file path.
func UserConfigPath(override string) string {
	return filepath.Join(UserConfigDir(override), UserConfigFile)
}

// Load applies configuration in order of increasing precedence:
//  1. defaults
//  2. user config (UserConfigPath)
//  3. project config (.docsearch.yaml)
//  4. .env in the project dir (never overriding variables already set)
//  5. environment variables
func Load(opts LoadOptions) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAML(UserConfigPath(opts.ConfigDir)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}

	projectDir := opts.ProjectDir
	if projectDir == "" {
		projectDir = "."
	}
	if err := cfg.loadYAML(filepath.Join(projectDir, ProjectConfigFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if err := godotenv.Load(filepath.Join(projectDir, EnvFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", EnvFile, err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile decodes one YAML file over the defaults. The environment is
// not consulted and the result is not validated.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path over the current values; keys absent from the
// file keep their previous value. Lists in the file replace lists in c.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variables. Malformed numbers are errors.
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"OLLAMA_HOST":             &c.Embeddings.OllamaHost,
		"EMBED_MODEL":             &c.Embeddings.Model,
		"DOCSEARCH_PROVIDER":      &c.Embeddings.Provider,
		"DOCSEARCH_EMBED_TIMEOUT": &c.Embeddings.Timeout,
		"OPENAI_API_KEY":          &c.Embeddings.OpenAIKey,
		"OPENAI_BASE_URL":         &c.Embeddings.OpenAIBaseURL,
		"GEMINI_API_KEY":          &c.Embeddings.GeminiKey,
		"DOCSEARCH_DOCS_DIR":      &c.Docs.Dir,
		"DOCSEARCH_INDEX_DIR":     &c.Index.Dir,
		"DOCSEARCH_BACKEND":       &c.Index.Backend,
		"DOCSEARCH_LOG_LEVEL":     &c.Logging.Level,
		"DOCSEARCH_LOG_FILE":      &c.Logging.File,
	}
	for name, dst := range str {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	if v := strings.TrimSpace(os.Getenv("SEARCH_TOP_K")); v != "" {
		k, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SEARCH_TOP_K must be an integer, got %q", v)
		}
		c.Search.TopK = k
	}
	if v := strings.TrimSpace(os.Getenv("DOCSEARCH_SECTIONS")); v != "" {
		c.Search.Sections = splitList(v)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Embeddings.Provider) {
	case "ollama", "openai", "gemini":
	default:
		return fmt.Errorf("embeddings.provider must be 'ollama', 'openai' or 'gemini', got %q", c.Embeddings.Provider)
	}
	if d, err := time.ParseDuration(c.Embeddings.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("embeddings.timeout must be a positive duration, got %q", c.Embeddings.Timeout)
	}
	if c.Embeddings.CacheSize < 0 {
		return fmt.Errorf("embeddings.cache_size must be non-negative, got %d", c.Embeddings.CacheSize)
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings.rate_limit must be non-negative, got %g", c.Embeddings.RateLimit)
	}
	if c.Embeddings.Retries < 0 {
		return fmt.Errorf("embeddings.retries must be non-negative, got %d", c.Embeddings.Retries)
	}

	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking.size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking.overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}

	switch strings.ToLower(c.Index.Backend) {
	case "auto", "flat", "hnsw", "faiss":
	default:
		return fmt.Errorf("index.backend must be 'auto', 'flat', 'hnsw' or 'faiss', got %q", c.Index.Backend)
	}
	if c.Index.Dir == "" {
		return fmt.Errorf("index.dir must not be empty")
	}
	if c.Index.HNSWM <= 0 || c.Index.HNSWEfSearch <= 0 {
		return fmt.Errorf("index.hnsw_m and index.hnsw_ef_search must be positive")
	}

	if c.Search.TopK < MinTopK || c.Search.TopK > MaxTopK {
		return fmt.Errorf("search.top_k must be between %d and %d, got %d", MinTopK, MaxTopK, c.Search.TopK)
	}
	if len(c.Search.Sections) == 0 {
		return fmt.Errorf("search.sections must list at least one section")
	}
	if c.Search.PreviewChars <= 0 {
		return fmt.Errorf("search.preview_chars must be positive, got %d", c.Search.PreviewChars)
	}

	if c.Docs.Dir == "" {
		return fmt.Errorf("docs.dir must not be empty")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn' or 'error', got %q", c.Logging.Level)
	}
	return nil
}

// EmbedTimeout returns the parsed embedding timeout.
func (c *Config) EmbedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Embeddings.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}

// Marshal renders the configuration as YAML. API keys are never written.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// WriteYAML writes the configuration to path, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

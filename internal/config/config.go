// Package config provides configuration loading and structs for the vectra CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Splitter  SplitterConfig  `yaml:"splitter"`
	Storage   StorageConfig   `yaml:"storage"`
	Watch     WatchConfig     `yaml:"watch"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// IndexConfig locates the index folder and its settings for newly created indexes.
type IndexConfig struct {
	Folder    string   `yaml:"folder"`
	IndexName string   `yaml:"index_name"`
	Version   int      `yaml:"version"`
	Indexed   []string `yaml:"indexed"`
}

// Embedding providers.
const (
	ProviderOpenAI = "openai"
	ProviderONNX   = "onnx"
	ProviderMock   = "mock"
)

// EmbeddingConfig holds embeddings provider settings.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider"`
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	ModelPath         string  `yaml:"model_path"`
	Dimensions        int     `yaml:"dimensions"`
	MaxTokens         int     `yaml:"max_tokens"`
	CacheSize         int     `yaml:"cache_size"`
	BatchSize         int     `yaml:"batch_size"`
	Concurrency       int     `yaml:"concurrency"`
	MaxRetries        *int    `yaml:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// APIKeyOrEnv returns the configured API key, falling back to OPENAI_API_KEY.
func (e *EmbeddingConfig) APIKeyOrEnv() string {
	if e.APIKey != "" {
		return e.APIKey
	}
	return os.Getenv("OPENAI_API_KEY")
}

// MaxRetriesOrDefault returns how often a rate limited request is retried; defaults to 3 when
// unset. 0 disables retries.
func (e *EmbeddingConfig) MaxRetriesOrDefault() int {
	if e.MaxRetries != nil {
		return *e.MaxRetries
	}
	return defaultMaxRetries
}

// SplitterConfig holds text splitting settings for document ingestion.
type SplitterConfig struct {
	ChunkSize      int    `yaml:"chunk_size"`
	ChunkOverlap   *int   `yaml:"chunk_overlap"`
	KeepSeparators bool   `yaml:"keep_separators"`
	DocType        string `yaml:"doc_type"`
}

// ChunkOverlapOrDefault returns the overlap in tokens; defaults to 10% of the chunk size when
// unset. 0 turns overlap off.
func (s *SplitterConfig) ChunkOverlapOrDefault() int {
	if s.ChunkOverlap != nil {
		return *s.ChunkOverlap
	}
	return s.ChunkSize / 10
}

// StorageConfig holds the path of the document catalog database.
type StorageConfig struct {
	CatalogPath string `yaml:"catalog_path"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// MetricsConfig controls Prometheus collection.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Index.Folder = expandPath(cfg.Index.Folder, configDir)
	cfg.Storage.CatalogPath = expandPath(cfg.Storage.CatalogPath, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate reports settings that cannot work together.
func Validate(cfg *Config) error {
	switch cfg.Embedding.Provider {
	case ProviderOpenAI, ProviderONNX, ProviderMock:
	default:
		return fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	if cfg.Splitter.ChunkSize < 1 {
		return fmt.Errorf("splitter.chunk_size must be at least 1")
	}
	if overlap := cfg.Splitter.ChunkOverlapOrDefault(); overlap < 0 || overlap > cfg.Splitter.ChunkSize {
		return fmt.Errorf("splitter.chunk_overlap must be between 0 and chunk_size")
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}

package config

const defaultMaxRetries = 3

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Index.Folder == "" {
		cfg.Index.Folder = ".vectra/index"
	}
	if cfg.Index.IndexName == "" {
		cfg.Index.IndexName = "index.json"
	}
	if cfg.Index.Version == 0 {
		cfg.Index.Version = 1
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderOpenAI
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-ada-002"
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = ".vectra/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Provider == ProviderOpenAI {
			cfg.Embedding.Dimensions = 1536
		} else {
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 8000
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 16
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 4
	}
	// MaxRetries and ChunkOverlap are pointers so an explicit 0 survives.
	if cfg.Embedding.MaxRetries == nil {
		n := cfg.Embedding.MaxRetriesOrDefault()
		cfg.Embedding.MaxRetries = &n
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 5
	}
	if cfg.Splitter.ChunkSize == 0 {
		cfg.Splitter.ChunkSize = 400
	}
	// 10% of the chunk size: 40 tokens for the default chunk size.
	if cfg.Splitter.ChunkOverlap == nil {
		n := cfg.Splitter.ChunkOverlapOrDefault()
		cfg.Splitter.ChunkOverlap = &n
	}
	if cfg.Storage.CatalogPath == "" {
		cfg.Storage.CatalogPath = ".vectra/catalog.db"
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "vectra"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".rst", ".go", ".py", ".pdf", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}

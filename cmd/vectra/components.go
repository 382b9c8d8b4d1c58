package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/vectra/internal/config"
	"github.com/hyperjump/vectra/internal/embedding"
	"github.com/hyperjump/vectra/internal/extract"
	"github.com/hyperjump/vectra/internal/indexer"
	"github.com/hyperjump/vectra/internal/metrics"
	"github.com/hyperjump/vectra/internal/storage"
	"github.com/hyperjump/vectra/pkg/index"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Components holds everything a command needs, wired from the config.
type Components struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry
	Index    *index.LocalIndex
	Catalog  *storage.SQLiteCatalog
	Model    embedding.Model
	Indexer  *indexer.Indexer

	closers []io.Closer
}

// Close releases the catalog and the embedding model and flushes the logger.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		_ = c.closers[i].Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}
}

// initializeComponents builds the index, catalog, embedding model and indexer. Metrics are
// collected on a private registry when cfg.Metrics.Enabled is set.
func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry()}

	var indexMetrics *metrics.Index
	var embeddingMetrics *metrics.Embedding
	if cfg.Metrics.Enabled {
		indexMetrics = metrics.NewIndex(cfg.Metrics.Namespace)
		embeddingMetrics = metrics.NewEmbedding(cfg.Metrics.Namespace)
		if err := indexMetrics.Register(c.Registry); err != nil {
			return nil, fmt.Errorf("failed to register index metrics: %w", err)
		}
		if err := embeddingMetrics.Register(c.Registry); err != nil {
			return nil, fmt.Errorf("failed to register embedding metrics: %w", err)
		}
	}

	indexOpts := []index.Option{index.WithIndexName(cfg.Index.IndexName), index.WithLogger(logger)}
	if indexMetrics != nil {
		indexOpts = append(indexOpts, index.WithObserver(indexMetrics))
	}
	c.Index = index.New(cfg.Index.Folder, indexOpts...)

	catalog, err := storage.NewSQLiteCatalog(cfg.Storage.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	c.Catalog = catalog
	c.closers = append(c.closers, catalog)

	model, closer := newModel(&cfg.Embedding, logger)
	if closer != nil {
		c.closers = append(c.closers, closer)
	}
	model = embedding.Instrument(model, cfg.Embedding.Provider, embeddingMetrics)
	if cfg.Embedding.CacheSize > 0 {
		model = embedding.NewCachedModel(model, cfg.Embedding.CacheSize, embeddingMetrics)
	}
	c.Model = model

	splitCfg := indexer.SplitterConfig{
		ChunkSize:      cfg.Splitter.ChunkSize,
		ChunkOverlap:   cfg.Splitter.ChunkOverlapOrDefault(),
		KeepSeparators: cfg.Splitter.KeepSeparators,
		DocType:        cfg.Splitter.DocType,
	}
	ix, err := indexer.NewIndexer(c.Index, model, catalog, splitCfg,
		indexer.WithLogger(logger),
		indexer.WithExtractor(extract.NewExtractor()),
		indexer.WithBatchSize(cfg.Embedding.BatchSize),
		indexer.WithConcurrency(cfg.Embedding.Concurrency),
		indexer.WithMaxRetries(cfg.Embedding.MaxRetriesOrDefault()),
		indexer.WithRateLimit(cfg.Embedding.RequestsPerSecond),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize indexer: %w", err)
	}
	c.Indexer = ix
	return c, nil
}

// newModel returns the configured embeddings provider. An ONNX model that cannot be loaded
// falls back to the mock model so the index stays usable offline.
func newModel(cfg *config.EmbeddingConfig, logger *zap.Logger) (embedding.Model, io.Closer) {
	switch cfg.Provider {
	case config.ProviderONNX:
		m, err := embedding.NewONNX(embedding.ONNXConfig{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err != nil {
			logger.Warn("onnx model unavailable, falling back to mock embeddings",
				zap.String("model_path", cfg.ModelPath), zap.Error(err))
			return embedding.NewMock(cfg.Dimensions), nil
		}
		return m, m
	case config.ProviderMock:
		return embedding.NewMock(cfg.Dimensions), nil
	default:
		// Only the text-embedding-3 family accepts a dimensions parameter.
		dims := 0
		if strings.HasPrefix(cfg.Model, "text-embedding-3") {
			dims = cfg.Dimensions
		}
		return embedding.NewOpenAI(&embedding.OpenAIConfig{
			APIKey:     cfg.APIKeyOrEnv(),
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: dims,
			MaxTokens:  cfg.MaxTokens,
			Logger:     logger,
		}), nil
	}
}

// ensureIndex creates the index from the config when it does not exist yet.
func (c *Components) ensureIndex(ctx context.Context) error {
	err := c.Index.Load(ctx)
	if !errors.Is(err, index.ErrNotFound) {
		return err
	}
	c.Logger.Info("creating index", zap.String("folder", c.Index.Folder()))
	return c.Index.CreateIndex(ctx, c.createConfig())
}

func (c *Components) createConfig() index.CreateConfig {
	return index.CreateConfig{
		Version:        c.Config.Index.Version,
		MetadataConfig: index.MetadataConfig{Indexed: c.Config.Index.Indexed},
	}
}

// writeMetrics dumps the collected metrics when metrics are enabled.
func (c *Components) writeMetrics(w io.Writer) error {
	if !c.Config.Metrics.Enabled {
		return nil
	}
	return metrics.WriteText(w, c.Registry)
}

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/tasuke/internal/admin"
	"github.com/hyperjump/tasuke/internal/aggregate"
	"github.com/hyperjump/tasuke/internal/config"
	"github.com/hyperjump/tasuke/internal/embedding"
	"github.com/hyperjump/tasuke/internal/extract"
	"github.com/hyperjump/tasuke/internal/generate"
	"github.com/hyperjump/tasuke/internal/indexer"
	"github.com/hyperjump/tasuke/internal/keyword"
	"github.com/hyperjump/tasuke/internal/llm"
	"github.com/hyperjump/tasuke/internal/needs"
	"github.com/hyperjump/tasuke/internal/retrieval"
	"github.com/hyperjump/tasuke/internal/search"
	"github.com/hyperjump/tasuke/internal/storage"
	"github.com/hyperjump/tasuke/internal/vector"
)

// Components holds the wired services for one process.
type Components struct {
	Storage      storage.Store
	Embedder     embedding.Embedder
	VectorIndex  vector.Index
	KeywordIndex keyword.Index
	Engine       *search.Engine
	Indexer      *indexer.Indexer
	Admin        *admin.Service
	// VectorsLoaded is false when the vector index started empty and needs a full reindex.
	VectorsLoaded bool

	vectorPath string
	logger     *zap.Logger
}

// Close persists the vector index and releases every component.
func (c *Components) Close() {
	if c.VectorIndex != nil && c.vectorPath != "" {
		if err := c.VectorIndex.Save(c.vectorPath); err != nil {
			c.logger.Warn("vector index save failed", zap.String("path", c.vectorPath), zap.Error(err))
		}
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{vectorPath: cfg.Storage.VectorIndexPath, logger: logger}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	var client *llm.Client
	if cfg.LLM.APIKey != "" {
		opts := []llm.ClientOption{
			llm.WithLogger(logger),
			llm.WithTimeout(time.Duration(cfg.LLM.TimeoutSeconds) * time.Second),
		}
		if cfg.LLM.RatePerSecond > 0 {
			opts = append(opts, llm.WithRateLimit(cfg.LLM.RatePerSecond, cfg.LLM.Burst))
		}
		client = llm.NewClient(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL, opts...)
	} else {
		logger.Warn("no language model API key configured; needs, summaries and plans use fallbacks")
	}
	// a nil *llm.Client must not reach the Completer interfaces as a typed nil
	var completer llm.Completer
	if client != nil {
		completer = client
	}

	embedder, err := embedding.New(embedding.Options{
		Provider:   cfg.Embedding.Provider,
		ModelPath:  cfg.Embedding.ModelPath,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		MaxTokens:  cfg.Embedding.MaxTokens,
		CacheSize:  cfg.Embedding.CacheSize,
		Client:     client,
	})
	if err != nil {
		logger.Warn("embedder unavailable, falling back to hash embeddings",
			zap.String("provider", cfg.Embedding.Provider), zap.Error(err))
		embedder, err = embedding.New(embedding.Options{
			Provider:   embedding.ProviderHash,
			Dimensions: cfg.Embedding.Dimensions,
			CacheSize:  cfg.Embedding.CacheSize,
		})
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}
	c.Embedder = embedder

	vectorIndex, err := vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.VectorIndex = vectorIndex
	if c.vectorPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.vectorPath), 0755); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to create vector index directory: %w", err)
		}
		if _, statErr := os.Stat(c.vectorPath); statErr == nil {
			if loadErr := vectorIndex.Load(c.vectorPath); loadErr != nil {
				logger.Warn("vector index load skipped (use full reindex)", zap.String("path", c.vectorPath), zap.Error(loadErr))
			} else {
				c.VectorsLoaded = true
			}
		}
	}
	logger.Info("vector index initialized",
		zap.Int("dimensions", embedder.Dimensions()),
		zap.Int("size", vectorIndex.Size()),
		zap.Bool("loaded", c.VectorsLoaded))

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.BleveIndexPath), 0755); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create keyword index directory: %w", err)
	}
	keywordIndex, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.KeywordIndex = keywordIndex

	retriever := retrieval.New(store, embedder, vectorIndex, keywordIndex, retrieval.Config{
		Namespace:      cfg.Retrieval.Namespace,
		KeywordWeight:  cfg.Retrieval.KeywordWeight,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		Oversample:     cfg.Retrieval.Oversample,
		Fuzziness:      cfg.Retrieval.Fuzziness,
	}, logger)
	agg := aggregate.NewAggregator(retriever, aggregate.WithLogger(logger))
	c.Engine = search.NewEngine(
		needs.NewExtractor(completer, logger),
		agg,
		generate.New(completer, logger),
		aggregate.Options{
			FullTopK:      cfg.Retrieval.FullTopK,
			PerNeedTopK:   cfg.Retrieval.PerNeedTopK,
			PerNeedLimit:  cfg.Retrieval.PerNeedLimit,
			MaxCandidates: cfg.Retrieval.MaxCandidates,
			GroupedTopK:   cfg.Retrieval.GroupedTopK,
			Parallel:      cfg.Retrieval.Parallel,
		},
		logger,
	)

	c.Indexer = indexer.NewIndexer(store, embedder, vectorIndex, keywordIndex, extract.NewExtractor(),
		indexer.WithLogger(logger),
		indexer.WithNamespace(cfg.Retrieval.Namespace),
		indexer.WithChunking(cfg.Indexer.ChunkSize, cfg.Indexer.ChunkOverlap),
		indexer.WithWorkers(cfg.Indexer.Workers),
	)
	c.Admin = admin.NewService(store, c.Indexer, admin.Config{
		Token:    cfg.Admin.Token,
		DocsPath: cfg.Data.DocsPath,
		MetaPath: cfg.Data.MetaPath,
	}, logger)
	return c, nil
}

// seed imports the datasets into an empty catalogue and rebuilds vectors that were not
// loaded from disk.
func (c *Components) seed(ctx context.Context, cfg *config.Config) error {
	stats, err := c.Storage.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.Total == 0 {
		res, err := c.Indexer.ImportJSONL(ctx, cfg.Data.DocsPath, cfg.Data.MetaPath)
		if err != nil {
			return fmt.Errorf("import datasets: %w", err)
		}
		c.logger.Info("seeded catalogue from datasets", zap.Int("imported", res.Imported), zap.Int("skipped", res.Skipped))
		return nil
	}
	if !c.VectorsLoaded {
		res, err := c.Indexer.Reindex(ctx, false)
		if err != nil {
			return fmt.Errorf("rebuild vectors: %w", err)
		}
		c.logger.Info("rebuilt vector index", zap.Int("upserted", res.Upserted), zap.Int("errors", res.Errors))
	}
	return nil
}

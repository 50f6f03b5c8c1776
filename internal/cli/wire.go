package cli

import (
	"context"
	"fmt"
	"log/slog"

	"voiceagent/config"
	"voiceagent/internal/adapter/cache"
	"voiceagent/internal/adapter/embedding"
	"voiceagent/internal/adapter/memstore"
	"voiceagent/internal/adapter/store"
	"voiceagent/internal/port"
	"voiceagent/internal/usecase"
)

// NewIndex opens the vector index selected by the config.
func NewIndex(ctx context.Context, cfg *config.Config, dimension int) (port.VectorIndex, error) {
	k := cfg.Knowledge
	switch cfg.VectorIndex.Provider {
	case "bolt", "":
		if err := config.EnsureDir(k.PersistDir); err != nil {
			return nil, fmt.Errorf("failed to create persist dir: %w", err)
		}
		return store.OpenBoltIndex(config.IndexDBPath(k.PersistDir), k.Collection, cfg.VectorIndex.OpenTimeout)
	case "qdrant":
		return store.NewQdrantIndex(ctx, cfg.VectorIndex.QdrantHost, cfg.VectorIndex.QdrantPort, k.Collection, dimension)
	case "memory":
		return memstore.NewMemoryIndex(k.Collection), nil
	default:
		return nil, fmt.Errorf("unsupported vector index provider: %s", cfg.VectorIndex.Provider)
	}
}

// NewEmbedder creates the embedder selected by the config.
func NewEmbedder(cfg *config.Config) (port.Embedder, error) {
	e := cfg.Embedding
	switch e.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedderFromEnv(e.APIKeyEnv, embedding.OpenAIOptions{
			Model:             e.Model,
			BaseURL:           e.BaseURL,
			Dimension:         e.Dimension,
			BatchSize:         e.BatchSize,
			RequestsPerSecond: e.RequestsPerSecond,
			Timeout:           e.Timeout,
		})
	case "mock":
		return embedding.NewMockEmbedder(e.Dimension), nil
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", e.Provider)
	}
}

// OpenKnowledgeStore wires the embedder, the index and the query cache into
// a KnowledgeStore. The returned close func releases the index.
func OpenKnowledgeStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*usecase.KnowledgeStore, func() error, error) {
	embedder, err := NewEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	index, err := NewIndex(ctx, cfg, embedder.Dimension())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open vector index: %w", err)
	}

	var qc *cache.QueryCache
	if cfg.Retrieve.CacheSize > 0 {
		qc = cache.NewQueryCache(cfg.Retrieve.CacheSize, cfg.Retrieve.CacheTTL)
	}

	ks, err := usecase.NewKnowledgeStore(ctx, index, embedder, usecase.Options{
		ChunkSize:    cfg.Knowledge.ChunkSize,
		ChunkOverlap: cfg.Knowledge.ChunkOverlap,
		Cache:        qc,
		Logger:       logger,
	})
	if err != nil {
		index.Close()
		return nil, nil, err
	}
	return ks, index.Close, nil
}

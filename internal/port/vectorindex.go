package port

import (
	"context"

	"voiceagent/internal/domain"
)

// VectorIndex is a persistent, collection-scoped store of embeddings.
// Implementations serialise writers themselves and must allow concurrent
// reads while a write is in flight.
type VectorIndex interface {
	// Collection returns the name of the collection the handle is bound to.
	Collection() string

	// Upsert adds or overwrites vectors by id.
	Upsert(ctx context.Context, items []VectorItem) error

	// ReplaceSource deletes every vector of sourceID and writes items
	// in a single atomic step.
	ReplaceSource(ctx context.Context, sourceID string, items []VectorItem) error

	// Nearest returns up to k vectors closest to query, best first.
	Nearest(ctx context.Context, query []float32, k int) ([]VectorResult, error)

	// DeleteSource removes every vector of sourceID and reports how many
	// were removed.
	DeleteSource(ctx context.Context, sourceID string) (int, error)

	// Count returns the number of vectors in the collection.
	Count(ctx context.Context) (int, error)

	// Info describes the collection.
	Info(ctx context.Context) (CollectionInfo, error)

	// SetModel records the embedding model that produced the vectors.
	SetModel(ctx context.Context, model string) error

	// Drop deletes the collection and recreates it empty.
	Drop(ctx context.Context) error

	Close() error
}

// VectorItem is a vector to be stored.
type VectorItem struct {
	ID       string // chunk id, see domain.ChunkID
	SourceID string
	Vector   []float32
	Text     string
	Metadata domain.ChunkMetadata
}

// VectorResult is a k-NN hit.
type VectorResult struct {
	ID       string
	Text     string
	Metadata domain.ChunkMetadata
	Score    float64 // cosine similarity, higher is better
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name      string `json:"name"`
	Count     int    `json:"count"`
	Dimension int    `json:"dimension"`
	Model     string `json:"model,omitempty"`
}

package memstore

import (
	"context"
	"fmt"
	"sync"

	"voiceagent/internal/adapter/store"
	"voiceagent/internal/domain"
	"voiceagent/internal/port"
)

// MemoryIndex is a process-local port.VectorIndex. Nothing is persisted;
// it backs tests and the "memory" index provider.
type MemoryIndex struct {
	mu         sync.RWMutex
	collection string
	vectors    map[string]port.VectorItem
	sources    map[string]map[string]struct{}
	dimension  int
	model      string
}

var _ port.VectorIndex = (*MemoryIndex)(nil)

func NewMemoryIndex(collection string) *MemoryIndex {
	return &MemoryIndex{
		collection: collection,
		vectors:    make(map[string]port.VectorItem),
		sources:    make(map[string]map[string]struct{}),
	}
}

func (s *MemoryIndex) Collection() string {
	return s.collection
}

func (s *MemoryIndex) Upsert(ctx context.Context, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreError("upsert", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.StoreError("upsert", s.put(items))
}

func (s *MemoryIndex) ReplaceSource(ctx context.Context, sourceID string, items []port.VectorItem) error {
	if err := ctx.Err(); err != nil {
		return domain.StoreError("replace source", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkDimension(items); err != nil {
		return domain.StoreError("replace source", err)
	}
	s.deleteSource(sourceID)
	return domain.StoreError("replace source", s.put(items))
}

func (s *MemoryIndex) checkDimension(items []port.VectorItem) error {
	dim := s.dimension
	for _, item := range items {
		if dim == 0 {
			dim = len(item.Vector)
		}
		if len(item.Vector) != dim {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", dim, len(item.Vector))
		}
	}
	return nil
}

func (s *MemoryIndex) put(items []port.VectorItem) error {
	if err := s.checkDimension(items); err != nil {
		return err
	}
	for _, item := range items {
		if s.dimension == 0 {
			s.dimension = len(item.Vector)
		}
		s.vectors[item.ID] = item
		ids, ok := s.sources[item.SourceID]
		if !ok {
			ids = make(map[string]struct{})
			s.sources[item.SourceID] = ids
		}
		ids[item.ID] = struct{}{}
	}
	return nil
}

func (s *MemoryIndex) deleteSource(sourceID string) int {
	removed := 0
	for id := range s.sources[sourceID] {
		if _, ok := s.vectors[id]; ok {
			delete(s.vectors, id)
			removed++
		}
	}
	delete(s.sources, sourceID)
	return removed
}

func (s *MemoryIndex) Nearest(ctx context.Context, query []float32, k int) ([]port.VectorResult, error) {
	if k <= 0 {
		return nil, domain.ConfigurationError("nearest", "k must be positive, got %d", k)
	}
	if err := ctx.Err(); err != nil {
		return nil, domain.StoreError("nearest", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(query) != s.dimension {
		return nil, domain.StoreError("nearest", fmt.Errorf("query dimension mismatch: expected %d, got %d", s.dimension, len(query)))
	}

	results := make([]port.VectorResult, 0, len(s.vectors))
	for id, item := range s.vectors {
		results = append(results, port.VectorResult{
			ID:       id,
			Text:     item.Text,
			Metadata: item.Metadata,
			Score:    store.CosineSimilarity(query, item.Vector),
		})
	}
	return store.TopK(results, k), nil
}

func (s *MemoryIndex) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteSource(sourceID), nil
}

func (s *MemoryIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors), nil
}

func (s *MemoryIndex) Info(ctx context.Context) (port.CollectionInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return port.CollectionInfo{
		Name:      s.collection,
		Count:     len(s.vectors),
		Dimension: s.dimension,
		Model:     s.model,
	}, nil
}

func (s *MemoryIndex) SetModel(ctx context.Context, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.model = model
	return nil
}

func (s *MemoryIndex) Drop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = make(map[string]port.VectorItem)
	s.sources = make(map[string]map[string]struct{})
	s.dimension = 0
	s.model = ""
	return nil
}

func (s *MemoryIndex) Close() error {
	return nil
}

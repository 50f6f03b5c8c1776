package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"go.etcd.io/bbolt"
	"voiceagent/internal/domain"
	"voiceagent/internal/port"
)

func openTestIndex(t *testing.T, collection string) *BoltIndex {
	t.Helper()
	idx, err := OpenBoltIndex(filepath.Join(t.TempDir(), "index", "index.db"), collection, 0)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func item(sourceID string, index, total int, vector ...float32) port.VectorItem {
	return port.VectorItem{
		ID:       domain.ChunkID(sourceID, index),
		SourceID: sourceID,
		Vector:   vector,
		Text:     "text of " + domain.ChunkID(sourceID, index),
		Metadata: domain.ChunkMetadata{
			Source:      sourceID + ".txt",
			SourceID:    sourceID,
			ChunkID:     index,
			TotalChunks: total,
		},
	}
}

func TestBoltIndexEmptyCollection(t *testing.T) {
	idx := openTestIndex(t, "voice_agent_kb")
	ctx := context.Background()

	results, err := idx.Nearest(ctx, []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("expected no error on empty collection, got %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Errorf("expected empty collection, got %d", count)
	}
}

func TestBoltIndexNearestOrdering(t *testing.T) {
	idx := openTestIndex(t, "kb")
	ctx := context.Background()

	err := idx.Upsert(ctx, []port.VectorItem{
		item("doc", 0, 3, 1, 0, 0),
		item("doc", 1, 3, 0.7, 0.7, 0),
		item("doc", 2, 3, 0, 0, 1),
	})
	if err != nil {
		t.Fatal(err)
	}

	results, err := idx.Nearest(ctx, []float32{1, 0.1, 0}, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].ID != "doc_chunk_0" || results[1].ID != "doc_chunk_1" {
		t.Errorf("unexpected order: %s, %s", results[0].ID, results[1].ID)
	}
	if results[0].Score < results[1].Score {
		t.Error("expected descending scores")
	}
	if results[0].Metadata.TotalChunks != 3 || results[0].Text == "" {
		t.Errorf("expected text and metadata to round trip, got %+v", results[0])
	}
}

func TestBoltIndexUpsertIsIdempotent(t *testing.T) {
	idx := openTestIndex(t, "kb")
	ctx := context.Background()

	items := []port.VectorItem{item("doc", 0, 2, 1, 0), item("doc", 1, 2, 0, 1)}
	for i := 0; i < 2; i++ {
		if err := idx.Upsert(ctx, items); err != nil {
			t.Fatal(err)
		}
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected 2 vectors after re-upsert, got %d", count)
	}
}

func TestBoltIndexReplaceSourceRemovesStaleTail(t *testing.T) {
	idx := openTestIndex(t, "kb")
	ctx := context.Background()

	old := []port.VectorItem{item("doc", 0, 3, 1, 0), item("doc", 1, 3, 1, 1), item("doc", 2, 3, 0, 1)}
	if err := idx.Upsert(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, []port.VectorItem{item("other", 0, 1, 1, 0)}); err != nil {
		t.Fatal(err)
	}

	if err := idx.ReplaceSource(ctx, "doc", []port.VectorItem{item("doc", 0, 1, 0.5, 0.5)}); err != nil {
		t.Fatal(err)
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Errorf("expected doc_chunk_0 and other_chunk_0, got %d vectors", count)
	}

	removed, err := idx.DeleteSource(ctx, "other")
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("expected 1 removed vector, got %d", removed)
	}
}

func TestBoltIndexCollectionsAreIsolated(t *testing.T) {
	db, err := bbolt.Open(filepath.Join(t.TempDir(), "index.db"), 0600, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	a, err := NewBoltIndex(db, "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewBoltIndex(db, "b")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	if err := a.Upsert(ctx, []port.VectorItem{item("doc", 0, 1, 1, 0)}); err != nil {
		t.Fatal(err)
	}

	results, err := b.Nearest(ctx, []float32{1, 0}, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("collection b leaked %d results from collection a", len(results))
	}
}

func TestBoltIndexReopenReusesCollection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	ctx := context.Background()

	idx, err := OpenBoltIndex(path, "kb", 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Upsert(ctx, []port.VectorItem{item("doc", 0, 1, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := idx.SetModel(ctx, "text-embedding-3-small"); err != nil {
		t.Fatal(err)
	}
	idx.Close()

	idx, err = OpenBoltIndex(path, "kb", 0)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()

	info, err := idx.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Count != 1 || info.Dimension != 2 || info.Model != "text-embedding-3-small" {
		t.Errorf("unexpected info after reopen: %+v", info)
	}
}

func TestBoltIndexDimensionMismatch(t *testing.T) {
	idx := openTestIndex(t, "kb")
	ctx := context.Background()

	if err := idx.Upsert(ctx, []port.VectorItem{item("doc", 0, 1, 1, 0)}); err != nil {
		t.Fatal(err)
	}

	err := idx.Upsert(ctx, []port.VectorItem{item("doc", 1, 1, 1, 0, 0)})
	if !errors.Is(err, domain.ErrStore) {
		t.Errorf("expected store error, got %v", err)
	}

	_, err = idx.Nearest(ctx, []float32{1, 0, 0}, 1)
	if !errors.Is(err, domain.ErrStore) {
		t.Errorf("expected store error for query, got %v", err)
	}
}

func TestBoltIndexDrop(t *testing.T) {
	idx := openTestIndex(t, "kb")
	ctx := context.Background()

	if err := idx.Upsert(ctx, []port.VectorItem{item("doc", 0, 1, 1, 0)}); err != nil {
		t.Fatal(err)
	}
	if err := idx.Drop(ctx); err != nil {
		t.Fatal(err)
	}

	info, err := idx.Info(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if info.Count != 0 || info.Dimension != 0 {
		t.Errorf("expected empty collection after drop, got %+v", info)
	}
}

func TestBoltIndexInvalidK(t *testing.T) {
	idx := openTestIndex(t, "kb")

	_, err := idx.Nearest(context.Background(), []float32{1}, 0)
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected configuration error, got %v", err)
	}
}

func TestSchemaVersionStamped(t *testing.T) {
	idx := openTestIndex(t, "kb")

	info, err := GetSchemaInfo(idx.DB())
	if err != nil {
		t.Fatal(err)
	}
	if info.Version != CurrentSchemaVersion {
		t.Errorf("expected schema v%d, got v%d", CurrentSchemaVersion, info.Version)
	}
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); got < 0.999 {
		t.Errorf("expected identical vectors to score 1, got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0 {
		t.Errorf("expected orthogonal vectors to score 0, got %f", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{1}); got != 0 {
		t.Errorf("expected mismatched lengths to score 0, got %f", got)
	}
}

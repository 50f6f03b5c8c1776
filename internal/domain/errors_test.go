package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"configuration", ConfigurationError("split", "overlap %d >= size %d", 200, 100), ErrConfiguration},
		{"not found", NotFoundError("ingest", errors.New("missing.txt")), ErrNotFound},
		{"embedding", EmbeddingError("embed", errors.New("rate limited"), true), ErrEmbedding},
		{"store", StoreError("upsert", errors.New("disk full")), ErrStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.kind) {
				t.Errorf("expected %v to match kind %v", tt.err, tt.kind)
			}
			if KindOf(tt.err) != tt.kind {
				t.Errorf("KindOf = %v, want %v", KindOf(tt.err), tt.kind)
			}

			wrapped := fmt.Errorf("outer: %w", tt.err)
			if !errors.Is(wrapped, tt.kind) {
				t.Errorf("kind lost through wrapping")
			}
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := EmbeddingError("embed", context.DeadlineExceeded, false)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected cause to be reachable")
	}
	if IsTemporary(err) {
		t.Error("expected non-temporary error")
	}
	if !IsTemporary(EmbeddingError("embed", errors.New("429"), true)) {
		t.Error("expected temporary error")
	}
}

func TestStoreErrorKeepsExistingKind(t *testing.T) {
	nf := NotFoundError("nearest", errors.New("collection missing"))
	if got := StoreError("search", nf); !errors.Is(got, ErrNotFound) || errors.Is(got, ErrStore) {
		t.Errorf("expected not-found kind to survive, got %v", got)
	}
	if StoreError("noop", nil) != nil {
		t.Error("expected nil for nil cause")
	}
}

func TestChunkID(t *testing.T) {
	if got := ChunkID("knowledge_base", 3); got != "knowledge_base_chunk_3" {
		t.Errorf("unexpected chunk id %q", got)
	}
}

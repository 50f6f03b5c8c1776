package domain

import "fmt"

// Document identifies a source text being ingested.
type Document struct {
	ID   string // source id, the stable key chunk ids are derived from
	Path string
}

// Chunk is a contiguous, overlapping span of a document's text.
type Chunk struct {
	ID       string
	SourceID string
	Source   string
	Index    int
	Total    int
	Text     string
}

// ChunkMetadata is persisted alongside every stored vector.
type ChunkMetadata struct {
	Source      string `json:"source"`
	SourceID    string `json:"source_id"`
	ChunkID     int    `json:"chunk_id"`
	TotalChunks int    `json:"total_chunks"`
}

// SearchResult is a ranked chunk returned for a query.
// Score is the cosine similarity between query and chunk; higher is better.
type SearchResult struct {
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
	Score    float64       `json:"score"`
}

// ChunkID derives the stored id of a chunk from its source and position.
// Re-ingesting a source therefore overwrites its chunks by position.
func ChunkID(sourceID string, index int) string {
	return fmt.Sprintf("%s_chunk_%d", sourceID, index)
}

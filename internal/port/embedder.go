package port

import "context"

// Embedder generates vector embeddings for text.
// The same Embedder must serve both ingestion and queries of a collection;
// vectors from different models are not comparable.
type Embedder interface {
	// Embed generates embeddings for the given texts.
	// Returns a slice of vectors, one per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}

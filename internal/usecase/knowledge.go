package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync/atomic"

	"voiceagent/internal/adapter/cache"
	"voiceagent/internal/adapter/chunker"
	"voiceagent/internal/adapter/fs"
	"voiceagent/internal/domain"
	"voiceagent/internal/observability"
	"voiceagent/internal/port"
)

// embedBatchSize bounds how many chunk texts are handed to the embedder per
// call; progress is reported between batches.
const embedBatchSize = 64

// KnowledgeStore ingests documents into a vector index and answers
// similarity queries against it. It holds only handles; the index owns the
// stored vectors. A KnowledgeStore is safe for concurrent use.
type KnowledgeStore struct {
	index        port.VectorIndex
	embedder     port.Embedder
	chunkSize    int
	chunkOverlap int
	cache        *cache.QueryCache
	logger       *slog.Logger

	modelRecorded atomic.Bool
}

// Options configures a KnowledgeStore. A zero ChunkSize takes the default
// chunk size and overlap.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Cache        *cache.QueryCache // nil disables result caching
	Logger       *slog.Logger
}

// IngestOptions tunes a single ingestion. A zero ChunkSize keeps the store's
// chunk size; once ChunkSize is set, ChunkOverlap is used as given.
type IngestOptions struct {
	ChunkSize    int
	ChunkOverlap int

	// SourceID overrides the id derived from the file name.
	SourceID string

	// Append writes chunks by id without first removing the source's
	// previous chunks. A shorter re-ingest then leaves stale tail chunks.
	Append bool

	// Progress, when set, is called after every embedded batch.
	Progress func(done, total int)
}

// IngestResult summarises a directory ingestion.
type IngestResult struct {
	FilesIngested int
	FilesFailed   int
	ChunksCreated int
	Errors        []string
}

// NewKnowledgeStore binds an index and an embedder. It never ingests; an
// existing collection is reused as is.
func NewKnowledgeStore(ctx context.Context, index port.VectorIndex, embedder port.Embedder, opts Options) (*KnowledgeStore, error) {
	if index == nil || embedder == nil {
		return nil, domain.ConfigurationError("knowledge store", "index and embedder are required")
	}
	// Like IngestOptions, a zero ChunkSize takes both defaults; once it is
	// set, ChunkOverlap is used as given, including 0.
	if opts.ChunkSize == 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
		opts.ChunkOverlap = chunker.DefaultChunkOverlap
	}
	if err := chunker.Validate(opts.ChunkSize, opts.ChunkOverlap); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &KnowledgeStore{
		index:        index,
		embedder:     embedder,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		cache:        opts.Cache,
		logger:       opts.Logger.With("collection", index.Collection()),
	}

	info, err := index.Info(ctx)
	if err != nil {
		return nil, err
	}
	if info.Model != "" {
		s.modelRecorded.Store(true)
		if info.Model != embedder.ModelName() {
			s.logger.Warn("collection was built with a different embedding model; scores are not comparable",
				"stored_model", info.Model, "model", embedder.ModelName())
		}
	}
	if info.Dimension != 0 && info.Dimension != embedder.Dimension() {
		s.logger.Warn("collection dimension differs from the embedder",
			"stored_dimension", info.Dimension, "dimension", embedder.Dimension())
	}
	return s, nil
}

// Collection returns the name of the bound collection.
func (s *KnowledgeStore) Collection() string {
	return s.index.Collection()
}

// ModelName returns the embedding model used for ingestion and queries.
func (s *KnowledgeStore) ModelName() string {
	return s.embedder.ModelName()
}

func (s *KnowledgeStore) chunkParams(opts IngestOptions) (int, int, error) {
	size, overlap := s.chunkSize, s.chunkOverlap
	if opts.ChunkSize != 0 {
		size = opts.ChunkSize
		overlap = opts.ChunkOverlap
	} else if opts.ChunkOverlap != 0 {
		overlap = opts.ChunkOverlap
	}
	return size, overlap, chunker.Validate(size, overlap)
}

// Ingest reads the UTF-8 document at path, chunks it, embeds every chunk and
// writes the vectors. The source id is the file name without extension
// unless opts.SourceID is set. It returns the number of chunks written.
func (s *KnowledgeStore) Ingest(ctx context.Context, path string, opts IngestOptions) (int, error) {
	if _, _, err := s.chunkParams(opts); err != nil {
		return 0, err
	}

	text, err := fs.ReadFile(path)
	if err != nil {
		return 0, err
	}

	sourceID := opts.SourceID
	if sourceID == "" {
		sourceID = fs.SourceID(filepath.Base(path))
	}
	return s.IngestText(ctx, sourceID, path, text, opts)
}

// IngestText runs the ingestion pipeline over in-memory text. source is
// recorded in chunk metadata.
func (s *KnowledgeStore) IngestText(ctx context.Context, sourceID, source, text string, opts IngestOptions) (n int, err error) {
	size, overlap, err := s.chunkParams(opts)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(sourceID) == "" {
		return 0, domain.ConfigurationError("ingest", "source id is empty")
	}

	ctx, span := observability.StartIngestSpan(ctx, s.Collection(), sourceID)
	defer func() {
		observability.RecordResult(span, n, err)
		span.End()
	}()

	ck, err := chunker.NewRecursiveChunker(size, overlap)
	if err != nil {
		return 0, err
	}
	chunks, err := ck.Chunk(domain.Document{ID: sourceID, Path: source}, text)
	if err != nil {
		return 0, err
	}

	items, err := s.embedChunks(ctx, chunks, opts.Progress)
	if err != nil {
		return 0, err
	}

	if opts.Append {
		if len(items) > 0 {
			err = s.index.Upsert(ctx, items)
		}
	} else {
		err = s.index.ReplaceSource(ctx, sourceID, items)
	}
	if err != nil {
		return 0, err
	}

	if len(items) > 0 && !s.modelRecorded.Load() {
		if err := s.index.SetModel(ctx, s.embedder.ModelName()); err != nil {
			s.logger.Warn("failed to record embedding model", "error", err)
		} else {
			s.modelRecorded.Store(true)
		}
	}
	s.invalidate()

	s.logger.Info("ingested document",
		"source_id", sourceID,
		"source", source,
		"chunks", len(chunks),
		"chunk_size", size,
		"chunk_overlap", overlap,
		"append", opts.Append,
	)
	return len(chunks), nil
}

func (s *KnowledgeStore) embedChunks(ctx context.Context, chunks []domain.Chunk, progress func(done, total int)) ([]port.VectorItem, error) {
	items := make([]port.VectorItem, 0, len(chunks))

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}

		vectors, err := s.embed(ctx, "ingest", texts)
		if err != nil {
			return nil, err
		}

		for i, c := range batch {
			items = append(items, port.VectorItem{
				ID:       c.ID,
				SourceID: c.SourceID,
				Vector:   vectors[i],
				Text:     c.Text,
				Metadata: domain.ChunkMetadata{
					Source:      c.Source,
					SourceID:    c.SourceID,
					ChunkID:     c.Index,
					TotalChunks: c.Total,
				},
			})
		}
		if progress != nil {
			progress(end, len(chunks))
		}
	}
	return items, nil
}

func (s *KnowledgeStore) embed(ctx context.Context, op string, texts []string) ([][]float32, error) {
	ctx, span := observability.StartEmbedSpan(ctx, s.embedder.ModelName(), len(texts))
	defer span.End()

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		observability.RecordResult(span, 0, err)
		if domain.KindOf(err) != nil {
			return nil, err
		}
		return nil, domain.EmbeddingError(op, err, false)
	}
	if len(vectors) != len(texts) {
		err := domain.EmbeddingError(op, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts)), false)
		observability.RecordResult(span, 0, err)
		return nil, err
	}
	return vectors, nil
}

// IngestDir ingests every file walker selects under root. Source ids are
// the slash separated relative paths without extension. A failing file is
// recorded and skipped; cancellation stops the walk.
func (s *KnowledgeStore) IngestDir(ctx context.Context, root string, walker port.FileWalker, opts IngestOptions) (*IngestResult, error) {
	if _, _, err := s.chunkParams(opts); err != nil {
		return nil, err
	}

	files, err := walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	result := &IngestResult{}
	for _, file := range files {
		fileOpts := opts
		fileOpts.SourceID = fs.SourceID(file.RelPath)

		n, err := s.Ingest(ctx, file.Path, fileOpts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %v", file.RelPath, err))
			s.logger.Warn("ingest failed", "path", file.Path, "error", err)
			continue
		}
		result.FilesIngested++
		result.ChunksCreated += n
	}
	return result, nil
}

// Search embeds query with the ingestion embedder and returns up to k chunks
// ordered by descending similarity. An empty collection yields no results
// and no error.
func (s *KnowledgeStore) Search(ctx context.Context, query string, k int) (results []domain.SearchResult, err error) {
	if k <= 0 {
		return nil, domain.ConfigurationError("search", "k must be positive, got %d", k)
	}
	// The query cache keys on the same normalised form that is embedded.
	query = strings.Join(strings.Fields(query), " ")
	if query == "" {
		return nil, domain.ConfigurationError("search", "query is empty")
	}

	var gen uint64
	if s.cache != nil {
		if cached, ok := s.cache.Get(query, k); ok {
			return cached, nil
		}
		gen = s.cache.Generation()
	}

	ctx, span := observability.StartSearchSpan(ctx, s.Collection(), k)
	defer func() {
		observability.RecordResult(span, len(results), err)
		span.End()
	}()

	vectors, err := s.embed(ctx, "search", []string{query})
	if err != nil {
		return nil, err
	}

	hits, err := s.index.Nearest(ctx, vectors[0], k)
	if err != nil {
		return nil, domain.StoreError("search", err)
	}

	results = make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, domain.SearchResult{
			Content:  h.Text,
			Metadata: h.Metadata,
			Score:    h.Score,
		})
	}

	if s.cache != nil {
		s.cache.Put(query, k, gen, results)
	}
	s.logger.Debug("search", "k", k, "results", len(results))
	return results, nil
}

// Remove deletes every chunk of sourceID and returns how many were removed.
func (s *KnowledgeStore) Remove(ctx context.Context, sourceID string) (int, error) {
	if strings.TrimSpace(sourceID) == "" {
		return 0, domain.ConfigurationError("remove", "source id is empty")
	}
	n, err := s.index.DeleteSource(ctx, sourceID)
	if err != nil {
		return 0, err
	}
	s.invalidate()
	s.logger.Info("removed source", "source_id", sourceID, "chunks", n)
	return n, nil
}

// Reset deletes every vector of the collection.
func (s *KnowledgeStore) Reset(ctx context.Context) error {
	if err := s.index.Drop(ctx); err != nil {
		return err
	}
	s.modelRecorded.Store(false)
	s.invalidate()
	s.logger.Info("collection reset")
	return nil
}

// Stats describes the bound collection.
func (s *KnowledgeStore) Stats(ctx context.Context) (port.CollectionInfo, error) {
	return s.index.Info(ctx)
}

// CacheStats reports query cache counters; ok is false when caching is off.
func (s *KnowledgeStore) CacheStats() (stats cache.Stats, ok bool) {
	if s.cache == nil {
		return cache.Stats{}, false
	}
	return s.cache.Stats(), true
}

func (s *KnowledgeStore) invalidate() {
	if s.cache != nil {
		s.cache.Invalidate()
	}
}

// IsEmpty reports whether the collection holds no vectors.
func (s *KnowledgeStore) IsEmpty(ctx context.Context) (bool, error) {
	n, err := s.index.Count(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

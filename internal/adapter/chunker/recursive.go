package chunker

import (
	"voiceagent/internal/domain"
)

// Default chunking parameters, measured in characters.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// separators are tried in order; the empty separator is the
// character-level fallback.
var separators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text into overlapping chunks, preferring to break
// on paragraph boundaries, then lines, then words, then characters.
//
// Consecutive chunks share exactly overlap characters of the source text, so
// dropping the first overlap characters of every chunk but the first
// reconstructs the input.
type RecursiveChunker struct {
	chunkSize int
	overlap   int
}

type span struct {
	start, end int
}

// NewRecursiveChunker validates the parameters and returns a chunker.
func NewRecursiveChunker(chunkSize, overlap int) (*RecursiveChunker, error) {
	if err := Validate(chunkSize, overlap); err != nil {
		return nil, err
	}
	return &RecursiveChunker{
		chunkSize: chunkSize,
		overlap:   overlap,
	}, nil
}

// Validate checks chunking parameters without splitting anything.
func Validate(chunkSize, overlap int) error {
	switch {
	case chunkSize <= 0:
		return domain.ConfigurationError("chunk", "chunk size must be positive, got %d", chunkSize)
	case overlap < 0:
		return domain.ConfigurationError("chunk", "chunk overlap must not be negative, got %d", overlap)
	case overlap >= chunkSize:
		return domain.ConfigurationError("chunk", "chunk overlap %d must be smaller than chunk size %d", overlap, chunkSize)
	}
	return nil
}

// Split is a convenience wrapper returning only the chunk texts.
func Split(text string, chunkSize, overlap int) ([]string, error) {
	c, err := NewRecursiveChunker(chunkSize, overlap)
	if err != nil {
		return nil, err
	}
	runes := []rune(text)
	spans := c.spans(runes)
	out := make([]string, len(spans))
	for i, sp := range spans {
		out[i] = string(runes[sp.start:sp.end])
	}
	return out, nil
}

func (c *RecursiveChunker) Chunk(doc domain.Document, content string) ([]domain.Chunk, error) {
	runes := []rune(content)
	spans := c.spans(runes)
	if len(spans) == 0 {
		return nil, nil
	}

	chunks := make([]domain.Chunk, len(spans))
	for i, sp := range spans {
		chunks[i] = domain.Chunk{
			ID:       domain.ChunkID(doc.ID, i),
			SourceID: doc.ID,
			Source:   doc.Path,
			Index:    i,
			Total:    len(spans),
			Text:     string(runes[sp.start:sp.end]),
		}
	}
	return chunks, nil
}

func (c *RecursiveChunker) spans(text []rune) []span {
	n := len(text)
	if n == 0 {
		return nil
	}

	var out []span
	start := 0
	for {
		if n-start <= c.chunkSize {
			return append(out, span{start, n})
		}

		end := c.cut(text, start)
		out = append(out, span{start, end})

		// end > start+overlap always holds, so every step makes progress.
		start = end - c.overlap
	}
}

// cut chooses where the chunk beginning at start ends. The cut must lie in
// (start+overlap, start+chunkSize] so the next chunk starts after this one.
func (c *RecursiveChunker) cut(text []rune, start int) int {
	lo := start + c.overlap
	hi := start + c.chunkSize

	for _, sep := range separators {
		if sep == "" {
			break
		}
		if end := lastCut(text, []rune(sep), start, lo, hi); end > 0 {
			return end
		}
	}
	return hi
}

// lastCut returns the largest p in (lo, hi] where sep ends at p and begins
// at or after start, or -1.
func lastCut(text, sep []rune, start, lo, hi int) int {
	for p := hi; p > lo; p-- {
		from := p - len(sep)
		if from < start {
			break
		}
		if equalRunes(text[from:p], sep) {
			return p
		}
	}
	return -1
}

func equalRunes(a, b []rune) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

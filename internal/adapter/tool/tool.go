// Package tool exposes knowledge search to conversational models as a
// single-argument tool.
package tool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"voiceagent/internal/domain"
)

const (
	Name        = "knowledge_base_search"
	Description = "Search the company knowledge base for specific information about history, products, services, and technology."

	// NoResults is returned when the search finds nothing.
	NoResults = "No relevant information found in the knowledge base."

	DefaultTopK = 3
)

// Searcher is the part of the knowledge store the tool needs.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
}

// KnowledgeTool runs a search and renders the hits as plain text for a
// speech model. Failures are rendered as text too, never returned.
type KnowledgeTool struct {
	searcher Searcher
	topK     int
	timeout  time.Duration
	logger   *slog.Logger
}

func NewKnowledgeTool(searcher Searcher, topK int, timeout time.Duration, logger *slog.Logger) *KnowledgeTool {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &KnowledgeTool{
		searcher: searcher,
		topK:     topK,
		timeout:  timeout,
		logger:   logger,
	}
}

// Call searches for query and formats the result.
func (t *KnowledgeTool) Call(ctx context.Context, query string) string {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	results, err := t.searcher.Search(ctx, query, t.topK)
	if err != nil {
		t.logger.Warn("knowledge base search failed", "query", query, "error", err)
		return FormatError(err)
	}
	t.logger.Debug("knowledge base search", "query", query, "results", len(results))
	return Format(results)
}

// Format renders results as numbered blocks separated by blank lines.
func Format(results []domain.SearchResult) string {
	if len(results) == 0 {
		return NoResults
	}
	blocks := make([]string, len(results))
	for i, r := range results {
		blocks[i] = fmt.Sprintf("Result %d:\n%s", i+1, r.Content)
	}
	return strings.Join(blocks, "\n\n")
}

func FormatError(err error) string {
	return "Error searching knowledge base: " + err.Error()
}

// Definition describes the tool for OpenAI-style function calling.
func Definition() openai.Tool {
	return openai.Tool{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        Name,
			Description: Description,
			Parameters: jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"query": {
						Type:        jsonschema.String,
						Description: "The search query to find relevant information in the knowledge base",
					},
				},
				Required: []string{"query"},
			},
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"voiceagent/internal/adapter/tool"
)

var (
	searchQuery string
	searchTopK  int
	searchJSON  bool
	searchTool  bool
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the knowledge base",
	Long: `Embed a query and return the most similar chunks, best first.
Scores are cosine similarities; higher is better.

Examples:
  voiceagent search -q "opening hours"
  voiceagent search -q "refund policy" -k 10 --json
  voiceagent search -q "refund policy" --tool   # text the voice agent would hear`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "search query (required)")
	searchCmd.Flags().IntVarP(&searchTopK, "top-k", "k", 0, "number of results (default from config)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output as JSON")
	searchCmd.Flags().BoolVar(&searchTool, "tool", false, "print the knowledge_base_search tool output")
	searchCmd.MarkFlagRequired("query")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	ks, closeIndex, err := OpenKnowledgeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	if searchTool {
		topK := cfg.Retrieve.ToolTopK
		if searchTopK > 0 {
			topK = searchTopK
		}
		kt := tool.NewKnowledgeTool(ks, topK, cfg.Retrieve.SearchTimeout, logger)
		fmt.Println(kt.Call(ctx, searchQuery))
		return nil
	}

	topK := cfg.Retrieve.TopK
	if searchTopK > 0 {
		topK = searchTopK
	}

	results, err := ks.Search(ctx, searchQuery, topK)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"query":   searchQuery,
			"results": results,
			"count":   len(results),
		})
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Printf("Found %d results for %q:\n\n", len(results), searchQuery)
	for i, r := range results {
		fmt.Printf("%d. %s [chunk %d/%d] (score: %.4f)\n",
			i+1, r.Metadata.Source, r.Metadata.ChunkID+1, r.Metadata.TotalChunks, r.Score)
		fmt.Printf("   %s\n\n", preview(r.Content, 200))
	}
	return nil
}

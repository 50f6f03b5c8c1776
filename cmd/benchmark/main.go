package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"voiceagent/config"
	"voiceagent/internal/cli"
	"voiceagent/internal/domain"
	"voiceagent/internal/logging"
)

func main() {
	dir := flag.String("dir", ".", "directory holding voiceagent.yaml")
	query := flag.String("q", "", "query to test")
	topK := flag.Int("k", 5, "number of results")
	runs := flag.Int("n", 10, "number of timed searches")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run ./cmd/benchmark -dir . -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Collection (size, dimension, model)")
		fmt.Println("  2. Similarity of the top results to the query")
		fmt.Println("  3. Search latency, which a voice turn waits on")
		os.Exit(1)
	}

	_ = godotenv.Load()

	cfg, err := config.LoadFromDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()

	// Every timed run embeds the query again.
	cfg.Retrieve.CacheSize = 0

	ctx := context.Background()
	ks, closeIndex, err := cli.OpenKnowledgeStore(ctx, cfg, logging.Discard())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening knowledge base: %v\n", err)
		os.Exit(1)
	}
	defer closeIndex()

	info, err := ks.Stats(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if info.Count == 0 {
		fmt.Fprintln(os.Stderr, "No chunks indexed - run 'voiceagent ingest' first")
		os.Exit(1)
	}

	fmt.Println("KNOWLEDGE BASE SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Collection: %s (%d chunks, %s index)\n", info.Name, info.Count, cfg.VectorIndex.Provider)
	fmt.Printf("Model: %s (%s)\n", ks.ModelName(), cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d\n", info.Dimension)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", *query)
	fmt.Println(strings.Repeat("-", 70))

	n := timedRuns(*runs)
	latencies := make([]time.Duration, 0, n)
	var results []domain.SearchResult
	for i := 0; i < n; i++ {
		start := time.Now()
		res, err := ks.Search(ctx, *query, *topK)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search error: %v\n", err)
			os.Exit(1)
		}
		latencies = append(latencies, time.Since(start))
		if i == 0 {
			results = res
		}
	}

	fmt.Printf("Top %d matches:\n\n", len(results))

	totalScore := 0.0
	for i, r := range results {
		preview := strings.ReplaceAll(r.Content, "\n", " ")
		if runes := []rune(preview); len(runes) > 150 {
			preview = string(runes[:150]) + "..."
		}

		similarity := r.Score
		totalScore += similarity

		rating := "LOW"
		if similarity > 0.7 {
			rating = "HIGH"
		} else if similarity > 0.5 {
			rating = "GOOD"
		} else if similarity > 0.3 {
			rating = "OK"
		}

		fmt.Printf("%d. [%s %.3f] %s chunk %d/%d\n", i+1, rating, similarity,
			shortPath(r.Metadata.Source), r.Metadata.ChunkID+1, r.Metadata.TotalChunks)
		fmt.Printf("   %s\n\n", preview)
	}

	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	if len(results) > 0 {
		avgScore := totalScore / float64(len(results))
		fmt.Printf("  Average similarity: %.3f\n", avgScore)
		fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)

		if avgScore > 0.5 {
			fmt.Println("  Status: GOOD - search results match the query well")
		} else if avgScore > 0.3 {
			fmt.Println("  Status: OK - results are somewhat related")
		} else {
			fmt.Println("  Status: POOR - the knowledge base may not cover this query")
		}
	}

	slices.Sort(latencies)
	fmt.Printf("\nLATENCY (%d searches):\n", len(latencies))
	fmt.Printf("  p50: %s\n", latencies[len(latencies)/2].Round(time.Millisecond))
	fmt.Printf("  p95: %s\n", latencies[(len(latencies)*95)/100].Round(time.Millisecond))
	fmt.Printf("  max: %s\n", latencies[len(latencies)-1].Round(time.Millisecond))
}

// timedRuns clamps the -n flag to at least one search.
func timedRuns(n int) int {
	return max(n, 1)
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		return parts[len(parts)-1]
	}
	return path
}

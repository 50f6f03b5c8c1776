package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"voiceagent/internal/adapter/fs"
	"voiceagent/internal/usecase"
)

var (
	ingestChunkSize    int
	ingestChunkOverlap int
	ingestAppend       bool
	ingestSourceID     string
	ingestVerify       string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [path...]",
	Short: "Chunk, embed and store documents",
	Long: `Ingest one or more UTF-8 documents into the knowledge base collection.

A file becomes one source named after the file without its extension. A
directory is walked with the configured include and exclude patterns and each
file becomes a source named after its relative path. Re-ingesting a source
replaces its previous chunks unless --append is given.

With no path, the configured document_path is ingested.

Examples:
  voiceagent ingest
  voiceagent ingest data/knowledge_base.txt
  voiceagent ingest docs/ --chunk-size 500 --chunk-overlap 50
  voiceagent ingest notes.txt --source-id faq --verify "refund policy"`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "chunk size in characters (default from config)")
	ingestCmd.Flags().IntVar(&ingestChunkOverlap, "chunk-overlap", 0, "chunk overlap in characters (default from config)")
	ingestCmd.Flags().BoolVar(&ingestAppend, "append", false, "keep previous chunks of the source (default from config)")
	ingestCmd.Flags().StringVar(&ingestSourceID, "source-id", "", "source id for a single file (default is the file name)")
	ingestCmd.Flags().StringVar(&ingestVerify, "verify", "", "run a test search after ingesting")
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	paths := args
	if len(paths) == 0 {
		paths = []string{cfg.Knowledge.DocumentPath}
	}
	if ingestSourceID != "" && len(paths) > 1 {
		return fmt.Errorf("--source-id needs exactly one path")
	}

	ks, closeIndex, err := OpenKnowledgeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	opts := usecase.IngestOptions{
		SourceID: ingestSourceID,
		Append:   !cfg.Knowledge.ReplaceOnIngest,
	}
	if cmd.Flags().Changed("append") {
		opts.Append = ingestAppend
	}
	if cmd.Flags().Changed("chunk-size") || cmd.Flags().Changed("chunk-overlap") {
		opts.ChunkSize = cfg.Knowledge.ChunkSize
		opts.ChunkOverlap = cfg.Knowledge.ChunkOverlap
		if cmd.Flags().Changed("chunk-size") {
			opts.ChunkSize = ingestChunkSize
		}
		if cmd.Flags().Changed("chunk-overlap") {
			opts.ChunkOverlap = ingestChunkOverlap
		}
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowBytes(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Embedding[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionSetWriter(os.Stderr),
	)
	opts.Progress = func(done, total int) {
		bar.ChangeMax(total)
		_ = bar.Set(done)
	}

	start := time.Now()
	result := &usecase.IngestResult{}
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return fmt.Errorf("cannot ingest %s: %w", p, err)
		}

		if info.IsDir() {
			walker := fs.NewWalker(cfg.Knowledge.Includes, cfg.Knowledge.Excludes)
			r, err := ks.IngestDir(ctx, p, walker, opts)
			if r != nil {
				result.FilesIngested += r.FilesIngested
				result.FilesFailed += r.FilesFailed
				result.ChunksCreated += r.ChunksCreated
				result.Errors = append(result.Errors, r.Errors...)
			}
			if err != nil {
				return err
			}
			continue
		}

		n, err := ks.Ingest(ctx, p, opts)
		if err != nil {
			result.FilesFailed++
			result.Errors = append(result.Errors, fmt.Sprintf("failed to ingest %s: %v", p, err))
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		result.FilesIngested++
		result.ChunksCreated += n
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	stats, err := ks.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\nIngestion complete!")
	fmt.Printf("  Collection:     %s\n", stats.Name)
	fmt.Printf("  Files ingested: %d\n", result.FilesIngested)
	fmt.Printf("  Chunks created: %d\n", result.ChunksCreated)
	fmt.Printf("  Total chunks:   %d\n", stats.Count)
	fmt.Printf("  Model:          %s\n", ks.ModelName())
	fmt.Printf("  Duration:       %s\n", formatDuration(time.Since(start)))

	if result.FilesFailed > 0 {
		fmt.Printf("\n  Failed: %d\n", result.FilesFailed)
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}

	if ingestVerify != "" {
		results, err := ks.Search(ctx, ingestVerify, cfg.Retrieve.ToolTopK)
		if err != nil {
			return fmt.Errorf("verification search failed: %w", err)
		}
		fmt.Printf("\nVerification search %q returned %d results\n", ingestVerify, len(results))
		for i, r := range results {
			fmt.Printf("  %d. [%.3f] %s\n", i+1, r.Score, preview(r.Content, 80))
		}
	}

	return ingestError(result)
}

// ingestError fails the command when any document failed, so scripts can
// tell a partial ingestion from a complete one.
func ingestError(result *usecase.IngestResult) error {
	switch {
	case result.FilesFailed == 0:
		return nil
	case result.FilesIngested == 0:
		return fmt.Errorf("no documents ingested (%d failed)", result.FilesFailed)
	default:
		return fmt.Errorf("%d of %d documents failed to ingest",
			result.FilesFailed, result.FilesFailed+result.FilesIngested)
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func preview(text string, n int) string {
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			runes[i] = ' '
		}
	}
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}

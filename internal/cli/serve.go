package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"voiceagent/internal/adapter/fs"
	"voiceagent/internal/adapter/httpapi"
	"voiceagent/internal/adapter/tool"
	"voiceagent/internal/domain"
	"voiceagent/internal/usecase"
)

var (
	serveAddr     string
	serveWatch    bool
	serveNoMCP    bool
	serveSeed     bool
	serveDebounce time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the knowledge base over HTTP",
	Long: `Start the HTTP API:

  GET  /         service banner
  GET  /health   embedding and vector index status
  POST /search   {"query": "...", "k": 5}
  /mcp           knowledge_base_search over MCP streamable HTTP

With --seed, an empty collection is filled from document_path before serving.
With --watch, changes to document_path are re-ingested as they happen.

Examples:
  voiceagent serve
  voiceagent serve --addr :9000 --seed --watch`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "re-ingest document_path when it changes")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "ingest document_path when the collection is empty")
	serveCmd.Flags().BoolVar(&serveNoMCP, "no-mcp", false, "do not mount the MCP endpoint")
	serveCmd.Flags().DurationVar(&serveDebounce, "debounce", 500*time.Millisecond, "watch debounce window")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	ctx := cmd.Context()

	ks, closeIndex, err := OpenKnowledgeStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIndex()

	if serveSeed {
		if err := seedIfEmpty(ctx, ks, cfg.Knowledge.DocumentPath); err != nil {
			return err
		}
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := httpapi.NewServer(httpapi.Config{
		Addr:          addr,
		CORSOrigins:   cfg.Server.CORSOrigins,
		DefaultTopK:   cfg.Retrieve.TopK,
		SearchTimeout: cfg.Retrieve.SearchTimeout,
	}, ks, logger)

	if !serveNoMCP {
		kt := tool.NewKnowledgeTool(ks, cfg.Retrieve.ToolTopK, cfg.Retrieve.SearchTimeout, logger)
		srv.Mount("/mcp", tool.NewServer(kt, ks).Handler())
	}

	if serveWatch {
		w, err := fs.NewWatcher([]string{cfg.Knowledge.DocumentPath}, serveDebounce, logger)
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", cfg.Knowledge.DocumentPath, err)
		}
		defer w.Close()
		go syncChanges(ctx, ks, w.Watch(ctx), !cfg.Knowledge.ReplaceOnIngest, logger)
	}

	logger.Info("serving knowledge base", "addr", addr, "collection", ks.Collection(), "model", ks.ModelName())
	return srv.Run(ctx)
}

// seedIfEmpty ingests path into an empty collection. A missing document
// leaves the collection empty and the service degraded rather than down.
func seedIfEmpty(ctx context.Context, ks *usecase.KnowledgeStore, path string) error {
	empty, err := ks.IsEmpty(ctx)
	if err != nil {
		return err
	}
	if !empty || path == "" {
		return nil
	}

	n, err := ks.Ingest(ctx, path, usecase.IngestOptions{})
	if errors.Is(err, domain.ErrNotFound) {
		logger.Warn("knowledge base document not found; collection stays empty", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to ingest %s: %w", path, err)
	}
	logger.Info("ingested knowledge base", "path", path, "chunks", n)
	return nil
}

// syncChanges applies watched document changes until changes is closed.
func syncChanges(ctx context.Context, ks *usecase.KnowledgeStore, changes <-chan fs.Change, appendOnly bool, logger *slog.Logger) {
	for c := range changes {
		sourceID := fs.SourceID(filepath.Base(c.Path))
		if c.Removed {
			n, err := ks.Remove(ctx, sourceID)
			if err != nil {
				logger.Error("remove failed", "path", c.Path, "error", err)
				continue
			}
			logger.Info("document removed", "path", c.Path, "chunks", n)
			continue
		}

		n, err := ks.Ingest(ctx, c.Path, usecase.IngestOptions{Append: appendOnly})
		if err != nil {
			logger.Error("re-ingest failed", "path", c.Path, "error", err, "temporary", domain.IsTemporary(err))
			continue
		}
		logger.Info("document re-ingested", "path", c.Path, "chunks", n)
	}
}

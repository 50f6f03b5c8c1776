// Package httpapi serves the knowledge store over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"voiceagent/internal/domain"
	"voiceagent/internal/port"
)

// KnowledgeService is the part of the knowledge store the API exposes.
type KnowledgeService interface {
	Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error)
	Stats(ctx context.Context) (port.CollectionInfo, error)
	ModelName() string
}

// Config holds HTTP server configuration.
type Config struct {
	Addr          string
	CORSOrigins   []string
	DefaultTopK   int
	SearchTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8000",
		CORSOrigins:   []string{"*"},
		DefaultTopK:   5,
		SearchTimeout: 10 * time.Second,
	}
}

// Server is the knowledge HTTP server.
type Server struct {
	config  Config
	service KnowledgeService
	logger  *slog.Logger
	mux     *http.ServeMux
	server  *http.Server
}

func NewServer(config Config, service KnowledgeService, logger *slog.Logger) *Server {
	if config.DefaultTopK <= 0 {
		config.DefaultTopK = 5
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:  config,
		service: service,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /search", s.handleSearch)

	s.server = &http.Server{
		Addr:              config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Mount registers an extra handler, e.g. the MCP endpoint, under pattern.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.mux.Handle(pattern, h)
}

// Handler returns the routed handler wrapped in middleware.
func (s *Server) Handler() http.Handler {
	return requestIDMiddleware(
		corsMiddleware(s.config.CORSOrigins,
			loggingMiddleware(s.logger, s.mux)))
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.config.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("stopping HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

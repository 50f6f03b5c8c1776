package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"voiceagent/internal/domain"
)

type rootResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

type healthResponse struct {
	Status   string         `json:"status"`
	Services healthServices `json:"services"`
}

type healthServices struct {
	Embedding     string `json:"embedding"`
	KnowledgeBase string `json:"knowledge_base"`
	VectorIndex   string `json:"vector_index"`
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query string `json:"query"`
	K     *int   `json:"k,omitempty"`
}

// SearchResponse is returned by POST /search.
type SearchResponse struct {
	Query   string                `json:"query"`
	Results []domain.SearchResult `json:"results"`
	Count   int                   `json:"count"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, rootResponse{
		Message: "Voice Agent API is running",
		Status:  "healthy",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info, err := s.service.Stats(r.Context())
	if err != nil {
		loggerFrom(r.Context(), s.logger).Error("health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "Health check failed: " + err.Error()})
		return
	}

	kb := "empty"
	if info.Count > 0 {
		kb = "ready"
	}
	respondJSON(w, http.StatusOK, healthResponse{
		Status: "healthy",
		Services: healthServices{
			Embedding:     s.service.ModelName(),
			KnowledgeBase: kb,
			VectorIndex:   fmt.Sprintf("%d documents", info.Count),
		},
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	logger := loggerFrom(r.Context(), s.logger)

	var req SearchRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body: " + err.Error()})
		return
	}

	k := s.config.DefaultTopK
	if req.K != nil {
		k = *req.K
	}

	ctx := r.Context()
	if s.config.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.SearchTimeout)
		defer cancel()
	}

	results, err := s.service.Search(ctx, req.Query, k)
	if err != nil {
		status := statusFor(err)
		if domain.IsTemporary(err) {
			w.Header().Set("Retry-After", "1")
		}
		logger.Log(ctx, levelFor(status), "search failed", "status", status, "error", err)
		respondJSON(w, status, errorResponse{Detail: "Search failed: " + err.Error()})
		return
	}

	logger.Debug("search", "query_len", len(strings.TrimSpace(req.Query)), "k", k, "results", len(results))
	respondJSON(w, http.StatusOK, SearchResponse{
		Query:   req.Query,
		Results: results,
		Count:   len(results),
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, domain.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func levelFor(status int) slog.Level {
	if status >= http.StatusInternalServerError {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

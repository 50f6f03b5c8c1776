package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voiceagent/internal/adapter/embedding"
	"voiceagent/internal/adapter/memstore"
	"voiceagent/internal/domain"
	"voiceagent/internal/logging"
	"voiceagent/internal/port"
	"voiceagent/internal/usecase"
)

type fakeService struct {
	results  []domain.SearchResult
	err      error
	statsErr error
	count    int
	gotK     int
}

func (f *fakeService) Search(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	f.gotK = k
	return f.results, f.err
}

func (f *fakeService) Stats(ctx context.Context) (port.CollectionInfo, error) {
	return port.CollectionInfo{Name: "kb", Count: f.count}, f.statsErr
}

func (f *fakeService) ModelName() string { return "mock" }

func newTestHandler(svc KnowledgeService) http.Handler {
	return NewServer(DefaultConfig(), svc, logging.Discard()).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoot(t *testing.T) {
	rec := do(t, newTestHandler(&fakeService{}), http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body rootResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Voice Agent API is running", body.Message)
	assert.Equal(t, "healthy", body.Status)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		svc    *fakeService
		status int
		kb     string
	}{
		{"empty", &fakeService{}, http.StatusOK, "empty"},
		{"ready", &fakeService{count: 7}, http.StatusOK, "ready"},
		{"failing", &fakeService{statsErr: domain.StoreError("info", errors.New("db closed"))}, http.StatusServiceUnavailable, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestHandler(tt.svc), http.MethodGet, "/health", "")
			require.Equal(t, tt.status, rec.Code)
			if tt.kb == "" {
				return
			}
			var body healthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.kb, body.Services.KnowledgeBase)
			assert.Equal(t, "mock", body.Services.Embedding)
		})
	}
}

func TestSearchDefaultsK(t *testing.T) {
	svc := &fakeService{results: []domain.SearchResult{{Content: "Refunds within 30 days.", Score: 0.8}}}
	rec := do(t, newTestHandler(svc), http.MethodPost, "/search", `{"query":"refunds"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 5, svc.gotK)

	var body SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "refunds", body.Query)
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Refunds within 30 days.", body.Results[0].Content)
}

func TestSearchErrorStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"configuration", domain.ConfigurationError("search", "k must be positive"), http.StatusBadRequest},
		{"not found", domain.NotFoundError("search", errors.New("no collection")), http.StatusNotFound},
		{"embedding", domain.EmbeddingError("search", errors.New("401"), false), http.StatusBadGateway},
		{"store", domain.StoreError("search", errors.New("corrupt")), http.StatusInternalServerError},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"embedding timeout", domain.EmbeddingError("embed", fmt.Errorf("post: %w", context.DeadlineExceeded), false), http.StatusGatewayTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newTestHandler(&fakeService{err: tt.err}), http.MethodPost, "/search", `{"query":"q","k":3}`)
			require.Equal(t, tt.status, rec.Code)

			var body errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.True(t, strings.HasPrefix(body.Detail, "Search failed: "), body.Detail)
		})
	}
}

func TestSearchTemporaryErrorSetsRetryAfter(t *testing.T) {
	svc := &fakeService{err: domain.EmbeddingError("search", errors.New("429"), true)}
	rec := do(t, newTestHandler(svc), http.MethodPost, "/search", `{"query":"q"}`)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestSearchBadBody(t *testing.T) {
	rec := do(t, newTestHandler(&fakeService{}), http.MethodPost, "/search", `{"query":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestHandler(&fakeService{}), http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestIDPropagates(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "call-42")
	rec := httptest.NewRecorder()
	newTestHandler(&fakeService{}).ServeHTTP(rec, req)
	assert.Equal(t, "call-42", rec.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	h := NewServer(Config{CORSOrigins: []string{"https://app.example.com"}}, &fakeService{}, logging.Discard()).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestSearchAgainstKnowledgeStore(t *testing.T) {
	ctx := context.Background()
	store, err := usecase.NewKnowledgeStore(ctx, memstore.NewMemoryIndex("kb"), embedding.NewMockEmbedder(128),
		usecase.Options{Logger: logging.Discard()})
	require.NoError(t, err)

	rec := do(t, newTestHandler(store), http.MethodPost, "/search", `{"query":"refunds","k":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var empty SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &empty))
	assert.Equal(t, 0, empty.Count)
	assert.NotNil(t, empty.Results)

	_, err = store.IngestText(ctx, "refunds", "refunds.txt", "Refunds are issued within 30 days.", usecase.IngestOptions{})
	require.NoError(t, err)

	rec = do(t, newTestHandler(store), http.MethodPost, "/search", `{"query":"refunds","k":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var body SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "refunds", body.Results[0].Metadata.SourceID)

	rec = do(t, newTestHandler(store), http.MethodPost, "/search", `{"query":"refunds","k":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

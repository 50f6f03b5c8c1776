package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
	"voiceagent/internal/domain"
	"voiceagent/internal/port"
)

const (
	defaultModel     = "text-embedding-3-small"
	defaultBatchSize = 100
)

// OpenAIOptions configures an OpenAIEmbedder.
type OpenAIOptions struct {
	APIKey  string
	Model   string
	BaseURL string // empty means api.openai.com; any OpenAI-compatible endpoint works

	// Dimension overrides the model's known vector size.
	Dimension int
	BatchSize int

	// RequestsPerSecond throttles outgoing requests; 0 disables throttling.
	RequestsPerSecond float64

	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIEmbedder implements port.Embedder with the OpenAI embeddings API.
// It never retries; failures surface as domain.ErrEmbedding and are marked
// temporary for rate limits, server errors and network failures.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
	batchSize int
	limiter   *rate.Limiter

	// requestDimensions is sent as the dimensions parameter; 0 omits it.
	requestDimensions int
}

var _ port.Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedderFromEnv reads the API key from apiKeyEnv.
func NewOpenAIEmbedderFromEnv(apiKeyEnv string, opts OpenAIOptions) (*OpenAIEmbedder, error) {
	opts.APIKey = os.Getenv(apiKeyEnv)
	if opts.APIKey == "" {
		return nil, domain.ConfigurationError("embedder", "API key not found in environment variable: %s", apiKeyEnv)
	}
	return NewOpenAIEmbedder(opts)
}

func NewOpenAIEmbedder(opts OpenAIOptions) (*OpenAIEmbedder, error) {
	if opts.APIKey == "" {
		return nil, domain.ConfigurationError("embedder", "API key is empty")
	}
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	dimension := opts.Dimension
	if dimension <= 0 {
		dimension = modelDimension(opts.Model)
	}
	var requestDimensions int
	if opts.Dimension > 0 && supportsDimensions(opts.Model) {
		requestDimensions = opts.Dimension
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.HTTPClient = httpClient

	e := &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: dimension,
		batchSize: opts.BatchSize,

		requestDimensions: requestDimensions,
	}
	if opts.RequestsPerSecond > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return e, nil
}

func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-3-small", "text-embedding-ada-002":
		return 1536
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default:
		return 1536
	}
}

// supportsDimensions reports whether model accepts a shortened output size.
func supportsDimensions(model string) bool {
	return strings.HasPrefix(model, "text-embedding-3-")
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		vectors, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vectors...)
	}
	return all, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, domain.EmbeddingError("embed", err, false)
		}
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.model),
		Dimensions: e.requestDimensions,
	})
	if err != nil {
		return nil, domain.EmbeddingError("embed", err, isTemporary(err))
	}

	if len(resp.Data) != len(texts) {
		return nil, domain.EmbeddingError("embed",
			fmt.Errorf("provider returned %d embeddings for %d inputs", len(resp.Data), len(texts)), false)
	}

	vectors := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(vectors) {
			return nil, domain.EmbeddingError("embed", fmt.Errorf("embedding index %d out of range", data.Index), false)
		}
		vectors[data.Index] = data.Embedding
	}

	for i, vec := range vectors {
		if vec == nil {
			return nil, domain.EmbeddingError("embed", fmt.Errorf("missing embedding for input %d", i), false)
		}
		if len(vec) != e.dimension {
			return nil, domain.EmbeddingError("embed",
				fmt.Errorf("unexpected embedding dimension: expected %d, got %d", e.dimension, len(vec)), false)
		}
	}
	return vectors, nil
}

func isTemporary(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

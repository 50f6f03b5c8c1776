package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"voiceagent/internal/domain"
)

// Config holds all configuration for the voice agent knowledge service.
type Config struct {
	Knowledge   KnowledgeConfig   `yaml:"knowledge"`
	VectorIndex VectorIndexConfig `yaml:"vector_index"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Retrieve    RetrieveConfig    `yaml:"retrieve"`
	Server      ServerConfig      `yaml:"server"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// KnowledgeConfig holds ingestion configuration.
type KnowledgeConfig struct {
	PersistDir      string   `yaml:"persist_dir"`
	Collection      string   `yaml:"collection"`
	DocumentPath    string   `yaml:"document_path"`
	ChunkSize       int      `yaml:"chunk_size"`    // characters
	ChunkOverlap    int      `yaml:"chunk_overlap"` // characters
	Includes        []string `yaml:"includes"`
	Excludes        []string `yaml:"excludes"`
	ReplaceOnIngest bool     `yaml:"replace_on_ingest"` // false keeps stale tail chunks
}

// VectorIndexConfig selects and configures the vector index backend.
type VectorIndexConfig struct {
	Provider    string        `yaml:"provider"` // "bolt", "qdrant", "memory"
	QdrantHost  string        `yaml:"qdrant_host"`
	QdrantPort  int           `yaml:"qdrant_port"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// EmbeddingConfig holds embedding configuration.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"`    // "openai", "mock"
	Model             string        `yaml:"model"`       // e.g., "text-embedding-3-small"
	APIKeyEnv         string        `yaml:"api_key_env"` // Environment variable for API key
	BaseURL           string        `yaml:"base_url"`
	Dimension         int           `yaml:"dimension"`
	BatchSize         int           `yaml:"batch_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// RetrieveConfig holds retrieval configuration.
type RetrieveConfig struct {
	TopK          int           `yaml:"top_k"`
	ToolTopK      int           `yaml:"tool_top_k"`
	CacheSize     int           `yaml:"cache_size"` // 0 disables the query cache
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	SearchTimeout time.Duration `yaml:"search_timeout"`
}

// ServerConfig holds HTTP service configuration.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// TelemetryConfig holds tracing configuration.
type TelemetryConfig struct {
	OTLPEndpoint string  `yaml:"otlp_endpoint"` // empty disables tracing export
	ServiceName  string  `yaml:"service_name"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text", "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Knowledge: KnowledgeConfig{
			PersistDir:      filepath.Join("data", "index"),
			Collection:      "voice_agent_kb",
			DocumentPath:    filepath.Join("data", "knowledge_base.txt"),
			ChunkSize:       1000,
			ChunkOverlap:    200,
			Includes:        []string{"**/*.txt", "**/*.md"},
			Excludes:        []string{"**/.git/**", "**/node_modules/**"},
			ReplaceOnIngest: true,
		},
		VectorIndex: VectorIndexConfig{
			Provider:    "bolt",
			QdrantHost:  "localhost",
			QdrantPort:  6334,
			OpenTimeout: 5 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Provider:  "openai",
			Model:     "text-embedding-3-small",
			APIKeyEnv: "OPENAI_API_KEY",
			Dimension: 0, // 0 uses the model's native size
			BatchSize: 100,
			Timeout:   60 * time.Second,
		},
		Retrieve: RetrieveConfig{
			TopK:          5,
			ToolTopK:      3,
			CacheSize:     128,
			CacheTTL:      5 * time.Minute,
			SearchTimeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Addr:        ":8000",
			CORSOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			ServiceName: "voiceagent",
			SampleRate:  1.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for voiceagent.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "voiceagent.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(dir, ".voiceagent", "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides file settings with environment variables. Names follow
// the settings the service has always read from its .env file.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("KNOWLEDGE_BASE_PATH"); v != "" {
		c.Knowledge.DocumentPath = v
	}
	if v := os.Getenv("VOICEAGENT_PERSIST_DIR"); v != "" {
		c.Knowledge.PersistDir = v
	}
	if v := os.Getenv("VOICEAGENT_COLLECTION"); v != "" {
		c.Knowledge.Collection = v
	}
	if v := os.Getenv("VOICEAGENT_VECTOR_INDEX"); v != "" {
		c.VectorIndex.Provider = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.VectorIndex.QdrantHost = v
	}
	if v, err := strconv.Atoi(os.Getenv("QDRANT_PORT")); err == nil && v > 0 {
		c.VectorIndex.QdrantPort = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("VOICEAGENT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.OTLPEndpoint = v
	}
	if debug, _ := strconv.ParseBool(os.Getenv("DEBUG")); debug {
		c.Logging.Level = "debug"
	}
}

// Validate reports every invalid setting as a configuration error.
func (c *Config) Validate() error {
	const op = "config"
	var errs []error

	k := c.Knowledge
	if k.PersistDir == "" && c.VectorIndex.Provider == "bolt" {
		errs = append(errs, domain.ConfigurationError(op, "knowledge.persist_dir is empty"))
	}
	if strings.TrimSpace(k.Collection) == "" {
		errs = append(errs, domain.ConfigurationError(op, "knowledge.collection is empty"))
	}
	if k.ChunkSize <= 0 {
		errs = append(errs, domain.ConfigurationError(op, "knowledge.chunk_size must be positive, got %d", k.ChunkSize))
	}
	if k.ChunkOverlap < 0 || k.ChunkOverlap >= k.ChunkSize {
		errs = append(errs, domain.ConfigurationError(op,
			"knowledge.chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d", k.ChunkOverlap, k.ChunkSize))
	}

	switch c.VectorIndex.Provider {
	case "bolt", "memory":
	case "qdrant":
		if c.VectorIndex.QdrantHost == "" || c.VectorIndex.QdrantPort <= 0 {
			errs = append(errs, domain.ConfigurationError(op, "vector_index: qdrant needs qdrant_host and qdrant_port"))
		}
	default:
		errs = append(errs, domain.ConfigurationError(op, "vector_index.provider %q is not one of bolt, qdrant, memory", c.VectorIndex.Provider))
	}

	switch c.Embedding.Provider {
	case "openai", "mock":
	default:
		errs = append(errs, domain.ConfigurationError(op, "embedding.provider %q is not one of openai, mock", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 0 || c.Embedding.BatchSize < 0 || c.Embedding.RequestsPerSecond < 0 {
		errs = append(errs, domain.ConfigurationError(op, "embedding: dimension, batch_size and requests_per_second must not be negative"))
	}

	if c.Retrieve.TopK <= 0 || c.Retrieve.ToolTopK <= 0 {
		errs = append(errs, domain.ConfigurationError(op, "retrieve: top_k and tool_top_k must be positive"))
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, domain.ConfigurationError(op, "logging.level %q is not recognised", c.Logging.Level))
	}

	return errors.Join(errs...)
}

// IndexDBPath returns the path to the index database inside persistDir.
func IndexDBPath(persistDir string) string {
	return filepath.Join(persistDir, "index.db")
}

// EnsureDir ensures the persistence directory exists.
func EnsureDir(persistDir string) error {
	return os.MkdirAll(persistDir, 0755)
}

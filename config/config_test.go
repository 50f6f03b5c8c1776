package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voiceagent/internal/domain"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Knowledge.ChunkSize != 1000 {
		t.Errorf("expected ChunkSize=1000, got %d", cfg.Knowledge.ChunkSize)
	}
	if cfg.Knowledge.ChunkOverlap != 200 {
		t.Errorf("expected ChunkOverlap=200, got %d", cfg.Knowledge.ChunkOverlap)
	}
	if cfg.Knowledge.Collection != "voice_agent_kb" {
		t.Errorf("expected collection voice_agent_kb, got %s", cfg.Knowledge.Collection)
	}
	if cfg.Embedding.Dimension != 0 {
		t.Errorf("expected Dimension=0 (model native size), got %d", cfg.Embedding.Dimension)
	}
	if cfg.Retrieve.TopK != 5 {
		t.Errorf("expected TopK=5, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.ToolTopK != 3 {
		t.Errorf("expected ToolTopK=3, got %d", cfg.Retrieve.ToolTopK)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoad_NonExistent(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	if err != nil {
		t.Errorf("expected no error for non-existent file, got %v", err)
	}
	if cfg == nil {
		t.Error("expected default config, got nil")
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "voiceagent.yaml")

	content := `
knowledge:
  chunk_size: 500
  chunk_overlap: 50
retrieve:
  top_k: 10
  cache_ttl: 30s
vector_index:
  provider: qdrant
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Knowledge.ChunkSize != 500 {
		t.Errorf("expected ChunkSize=500, got %d", cfg.Knowledge.ChunkSize)
	}
	if cfg.Retrieve.TopK != 10 {
		t.Errorf("expected TopK=10, got %d", cfg.Retrieve.TopK)
	}
	if cfg.Retrieve.CacheTTL != 30*time.Second {
		t.Errorf("expected CacheTTL=30s, got %v", cfg.Retrieve.CacheTTL)
	}
	if cfg.VectorIndex.Provider != "qdrant" {
		t.Errorf("expected provider qdrant, got %s", cfg.VectorIndex.Provider)
	}
	// Untouched sections keep their defaults.
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("expected default model, got %s", cfg.Embedding.Model)
	}
}

func TestLoadFromDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(tmpDir, ".voiceagent"), 0755); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(tmpDir, ".voiceagent", "config.yaml")

	content := `
server:
  addr: ":9000"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromDir(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Addr != ":9000" {
		t.Errorf("expected addr :9000, got %s", cfg.Server.Addr)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voiceagent.yaml")
	cfg := DefaultConfig()
	cfg.Knowledge.Collection = "support_docs"
	cfg.Retrieve.SearchTimeout = 3 * time.Second

	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Knowledge.Collection != "support_docs" {
		t.Errorf("expected collection support_docs, got %s", loaded.Knowledge.Collection)
	}
	if loaded.Retrieve.SearchTimeout != 3*time.Second {
		t.Errorf("expected SearchTimeout=3s, got %v", loaded.Retrieve.SearchTimeout)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("KNOWLEDGE_BASE_PATH", "/srv/kb.txt")
	t.Setenv("QDRANT_PORT", "7000")
	t.Setenv("DEBUG", "true")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Knowledge.DocumentPath != "/srv/kb.txt" {
		t.Errorf("expected document path from env, got %s", cfg.Knowledge.DocumentPath)
	}
	if cfg.VectorIndex.QdrantPort != 7000 {
		t.Errorf("expected qdrant port 7000, got %d", cfg.VectorIndex.QdrantPort)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"overlap equals size", func(c *Config) { c.Knowledge.ChunkOverlap = c.Knowledge.ChunkSize }},
		{"overlap larger than size", func(c *Config) { c.Knowledge.ChunkSize = 200; c.Knowledge.ChunkOverlap = 300 }},
		{"zero chunk size", func(c *Config) { c.Knowledge.ChunkSize = 0 }},
		{"negative overlap", func(c *Config) { c.Knowledge.ChunkOverlap = -1 }},
		{"empty collection", func(c *Config) { c.Knowledge.Collection = " " }},
		{"unknown index", func(c *Config) { c.VectorIndex.Provider = "chroma" }},
		{"unknown embedder", func(c *Config) { c.Embedding.Provider = "voyage" }},
		{"zero top k", func(c *Config) { c.Retrieve.TopK = 0 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestIndexDBPath(t *testing.T) {
	path := IndexDBPath("/srv/data/index")
	expected := filepath.Join("/srv/data/index", "index.db")
	if path != expected {
		t.Errorf("expected %s, got %s", expected, path)
	}
}

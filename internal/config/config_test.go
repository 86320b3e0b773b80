package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Chunker.ChunkSize != 1000 || cfg.Chunker.ChunkOverlap != 100 {
		t.Fatalf("chunker = %+v", cfg.Chunker)
	}
	if cfg.Embedder.Type != "hashing" || cfg.Embedder.BatchSize != 20 {
		t.Fatalf("embedder = %+v", cfg.Embedder)
	}
	if cfg.Writer.BatchSize != 10 || cfg.Writer.IDMode != "random" {
		t.Fatalf("writer = %+v", cfg.Writer)
	}
	if cfg.Retriever.ThresholdValue() != 0.7 || cfg.Retriever.Limit != 3 || cfg.Retriever.ScanLimit != 1000 {
		t.Fatalf("retriever = %+v", cfg.Retriever)
	}
	if !cfg.Retriever.FallbackOnEmptyEnabled() {
		t.Fatal("fallback on empty should default to enabled")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := writeConfig(t, `
embedder:
  type: openai
  openai:
    model: text-embedding-3-small
vector_store:
  type: postgres
  postgres: {}
retriever:
  fallback_on_empty: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	o := cfg.Embedder.OpenAI
	if o.Model != "text-embedding-3-small" || o.APIKeyEnv != "OPENAI_API_KEY" || o.TimeoutSecs != 300 || o.ConnectTimeoutSecs != 60 || o.MaxRetries != 3 {
		t.Fatalf("openai = %+v", o)
	}
	if cfg.Embedder.Dimension != 1536 {
		t.Fatalf("dimension = %d", cfg.Embedder.Dimension)
	}
	if cfg.VectorStore.Postgres.DSNEnv != "DATABASE_URL" {
		t.Fatalf("postgres = %+v", cfg.VectorStore.Postgres)
	}
	if cfg.Retriever.FallbackOnEmptyEnabled() {
		t.Fatal("fallback_on_empty: false was ignored")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestExplicitZeroThresholdIsKept(t *testing.T) {
	cfg, err := Load(writeConfig(t, "retriever:\n  threshold: 0\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Retriever.Threshold == nil || cfg.Retriever.ThresholdValue() != 0 {
		t.Fatalf("threshold = %v", cfg.Retriever.Threshold)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "chunker: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		want   string
	}{
		{"zero chunk size", func(c *AppConfig) { c.Chunker.ChunkSize = 0 }, "chunk_size"},
		{"overlap too large", func(c *AppConfig) { c.Chunker.ChunkOverlap = c.Chunker.ChunkSize }, "chunk_overlap"},
		{"negative overlap", func(c *AppConfig) { c.Chunker.ChunkOverlap = -1 }, "chunk_overlap"},
		{"unknown embedder", func(c *AppConfig) { c.Embedder.Type = "word2vec" }, "unknown embedder"},
		{"openai without section", func(c *AppConfig) { c.Embedder.Type = "openai"; c.Embedder.OpenAI = nil }, "embedder.openai"},
		{"zero embed batch", func(c *AppConfig) { c.Embedder.BatchSize = 0 }, "embedder.batch_size"},
		{"sqlite without path", func(c *AppConfig) { c.VectorStore.SQLite = &SQLiteConfig{} }, "sqlite.path"},
		{"qdrant without url", func(c *AppConfig) { c.VectorStore = VectorStoreConfig{Type: "qdrant"} }, "qdrant.url"},
		{"unknown store", func(c *AppConfig) { c.VectorStore.Type = "redis" }, "unknown vector store"},
		{"zero write batch", func(c *AppConfig) { c.Writer.BatchSize = 0 }, "writer.batch_size"},
		{"bad id mode", func(c *AppConfig) { c.Writer.IDMode = "hash" }, "id_mode"},
		{"threshold out of range", func(c *AppConfig) { v := 1.5; c.Retriever.Threshold = &v }, "threshold"},
		{"unknown composer", func(c *AppConfig) { c.Answer.Type = "magic" }, "unknown answer composer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Retriever.Limit = 7
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Retriever.Limit != 7 || got.VectorStore.SQLite.Path != "pdfrag.db" {
		t.Fatalf("round trip lost settings: %+v", got)
	}
}

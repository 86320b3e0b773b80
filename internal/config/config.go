package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ChunkerConfig configures how document pages are split into chunks.
type ChunkerConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL            string  `yaml:"base_url"`
	APIKeyEnv          string  `yaml:"api_key_env"`
	Model              string  `yaml:"model"`
	TimeoutSecs        int     `yaml:"timeout_secs"`
	ConnectTimeoutSecs int     `yaml:"connect_timeout_secs"`
	MaxRetries         int     `yaml:"max_retries"`
	RequestsPerSecond  float64 `yaml:"requests_per_second"`
}

// EmbedderConfig selects and configures the text embedder implementation.
// Dimension is enforced on every vector and sizes the store schema.
type EmbedderConfig struct {
	Type        string                `yaml:"type"`
	Dimension   int                   `yaml:"dimension"`
	BatchSize   int                   `yaml:"batch_size"`
	Concurrency int                   `yaml:"concurrency"`
	OpenAI      *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
}

// PostgresConfig points at a pgvector-enabled database. The DSN is read from
// the environment variable named by DSNEnv.
type PostgresConfig struct {
	DSNEnv       string `yaml:"dsn_env"`
	IVFFlatLists int    `yaml:"ivfflat_lists"`
}

// SQLiteConfig locates the sqlite database file.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// WriterConfig configures persistence batching and record identity.
type WriterConfig struct {
	BatchSize int    `yaml:"batch_size"`
	IDMode    string `yaml:"id_mode"`
}

// RetrieverConfig configures the two search tiers. Threshold is a pointer so
// that an explicit 0 is kept.
type RetrieverConfig struct {
	Threshold       *float64 `yaml:"threshold,omitempty"`
	Limit           int      `yaml:"limit"`
	ScanLimit       int      `yaml:"scan_limit"`
	FallbackOnEmpty *bool    `yaml:"fallback_on_empty,omitempty"`
}

// AnswerConfig selects how answers are composed from retrieved context.
type AnswerConfig struct {
	Type         string  `yaml:"type"`
	Model        string  `yaml:"model"`
	BaseURL      string  `yaml:"base_url"`
	APIKeyEnv    string  `yaml:"api_key_env"`
	Temperature  float64 `yaml:"temperature"`
	TimeoutSecs  int     `yaml:"timeout_secs"`
	MaxSentences int     `yaml:"max_sentences"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Writer      WriterConfig      `yaml:"writer"`
	Retriever   RetrieverConfig   `yaml:"retriever"`
	Answer      AnswerConfig      `yaml:"answer"`
	Log         LogConfig         `yaml:"log"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ThresholdValue returns the similarity threshold, 0.7 when unset.
func (c RetrieverConfig) ThresholdValue() float64 {
	if c.Threshold == nil {
		return 0.7
	}
	return *c.Threshold
}

// FallbackOnEmptyEnabled reports whether an empty similarity result triggers a scan.
func (c RetrieverConfig) FallbackOnEmptyEnabled() bool {
	return c.FallbackOnEmpty == nil || *c.FallbackOnEmpty
}

// Validate reports the first setting that cannot work.
func (c *AppConfig) Validate() error {
	if c.Chunker.ChunkSize <= 0 {
		return fmt.Errorf("chunker.chunk_size must be positive, got %d", c.Chunker.ChunkSize)
	}
	if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
		return fmt.Errorf("chunker.chunk_overlap must be in [0, %d), got %d", c.Chunker.ChunkSize, c.Chunker.ChunkOverlap)
	}
	switch c.Embedder.Type {
	case "hashing":
	case "openai":
		if c.Embedder.OpenAI == nil {
			return errors.New("embedder.openai section missing")
		}
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	if c.Embedder.BatchSize <= 0 {
		return fmt.Errorf("embedder.batch_size must be positive, got %d", c.Embedder.BatchSize)
	}
	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("embedder.dimension must be positive, got %d", c.Embedder.Dimension)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "sqlite":
		if c.VectorStore.SQLite == nil || c.VectorStore.SQLite.Path == "" {
			return errors.New("vector_store.sqlite.path missing")
		}
	case "postgres":
		if c.VectorStore.Postgres == nil {
			return errors.New("vector_store.postgres section missing")
		}
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return errors.New("vector_store.qdrant.url missing")
		}
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}
	if c.Writer.BatchSize <= 0 {
		return fmt.Errorf("writer.batch_size must be positive, got %d", c.Writer.BatchSize)
	}
	if c.Writer.IDMode != "random" && c.Writer.IDMode != "content" {
		return fmt.Errorf("writer.id_mode must be random or content, got %q", c.Writer.IDMode)
	}
	if t := c.Retriever.ThresholdValue(); t < -1 || t > 1 {
		return fmt.Errorf("retriever.threshold must be in [-1, 1], got %v", t)
	}
	switch c.Answer.Type {
	case "openai", "extractive":
	default:
		return fmt.Errorf("unknown answer composer: %s", c.Answer.Type)
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing"},
		VectorStore: VectorStoreConfig{Type: "sqlite", SQLite: &SQLiteConfig{Path: "pdfrag.db"}},
		Answer:      AnswerConfig{Type: "extractive"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.ChunkOverlap == 0 && cfg.Chunker.ChunkSize > 100 {
		cfg.Chunker.ChunkOverlap = 100
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 20
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 1
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-ada-002"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 300
		}
		if o.ConnectTimeoutSecs == 0 {
			o.ConnectTimeoutSecs = 60
		}
		if o.MaxRetries == 0 {
			o.MaxRetries = 3
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 1536
		}
	}
	if cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 256
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if p := cfg.VectorStore.Postgres; p != nil {
		if p.DSNEnv == "" {
			p.DSNEnv = "DATABASE_URL"
		}
		if p.IVFFlatLists == 0 {
			p.IVFFlatLists = 100
		}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "policy_embeddings"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	if cfg.Writer.BatchSize == 0 {
		cfg.Writer.BatchSize = 10
	}
	if cfg.Writer.IDMode == "" {
		cfg.Writer.IDMode = "random"
	}

	if cfg.Retriever.Limit == 0 {
		cfg.Retriever.Limit = 3
	}
	if cfg.Retriever.ScanLimit == 0 {
		cfg.Retriever.ScanLimit = 1000
	}

	if cfg.Answer.Type == "" {
		cfg.Answer.Type = "extractive"
	}
	if cfg.Answer.Model == "" {
		cfg.Answer.Model = "gpt-4"
	}
	if cfg.Answer.BaseURL == "" {
		cfg.Answer.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Answer.APIKeyEnv == "" {
		cfg.Answer.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Answer.TimeoutSecs == 0 {
		cfg.Answer.TimeoutSecs = 300
	}
	if cfg.Answer.MaxSentences == 0 {
		cfg.Answer.MaxSentences = 5
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}

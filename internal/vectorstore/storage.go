package vectorstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/vectorstore/memory"
	"pdfrag/internal/vectorstore/postgres"
	"pdfrag/internal/vectorstore/qdrant"
	"pdfrag/internal/vectorstore/sqlite"
)

// Open builds the store selected by cfg. Secrets are read from the
// environment variables the config names.
func Open(ctx context.Context, cfg config.VectorStoreConfig) (domain.VectorStore, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "sqlite":
		if cfg.SQLite == nil {
			return nil, fmt.Errorf("sqlite config missing")
		}
		return sqlite.Open(ctx, cfg.SQLite.Path)
	case "postgres":
		if cfg.Postgres == nil {
			return nil, fmt.Errorf("postgres config missing")
		}
		dsn := os.Getenv(cfg.Postgres.DSNEnv)
		if dsn == "" {
			return nil, fmt.Errorf("missing postgres DSN in env %s", cfg.Postgres.DSNEnv)
		}
		return postgres.Open(ctx, dsn, cfg.Postgres.IVFFlatLists)
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		var apiKey string
		if cfg.Qdrant.APIKeyEnv != "" {
			apiKey = os.Getenv(cfg.Qdrant.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     apiKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

// EnsureSchema prepares the store for vectors of the given dimension when
// it needs preparing.
func EnsureSchema(ctx context.Context, s domain.VectorStore, dimension int) error {
	if m, ok := s.(domain.SchemaManager); ok {
		return m.EnsureSchema(ctx, dimension)
	}
	return nil
}

// Close releases the store's connections, if it holds any.
func Close(s domain.VectorStore) error {
	if c, ok := s.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

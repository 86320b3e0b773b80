package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"pdfrag/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS policy_embeddings (
    id TEXT PRIMARY KEY,
    content TEXT NOT NULL,
    embedding TEXT NOT NULL,
    source_file TEXT,
    metadata TEXT,
    created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS policy_embeddings_source_file_idx ON policy_embeddings (source_file);
`

// Storage keeps embedding records in a local sqlite file. Embeddings are
// stored as JSON text and there is no vector index, so every search is
// served by the caller's scan tier.
type Storage struct {
	db *sql.DB
}

// Open creates the database file and its table if needed.
func Open(ctx context.Context, path string) (*Storage, error) {
	if path == "" {
		return nil, errors.New("sqlite path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &Storage{db: db}
	if err := s.EnsureSchema(ctx, 0); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Storage) Close() error { return s.db.Close() }

// EnsureSchema creates the table. The dimension is not part of the sqlite
// schema; vectors of any length are accepted.
func (s *Storage) EnsureSchema(ctx context.Context, _ int) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: create schema: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Storage) SimilaritySearch(ctx context.Context, vector []float64, threshold float64, count int) ([]domain.ScoredResult, error) {
	return nil, domain.ErrSimilarityUnsupported
}

func (s *Storage) Scan(ctx context.Context, limit int) ([]domain.StoredRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding, source_file, metadata, created_at FROM policy_embeddings ORDER BY rowid LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []domain.StoredRecord
	for rows.Next() {
		var (
			r       domain.StoredRecord
			emb     string
			source  sql.NullString
			meta    sql.NullString
			created string
		)
		if err := rows.Scan(&r.ID, &r.Content, &emb, &source, &meta, &created); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
		r.RawEmbedding = []byte(emb)
		r.SourceFile = source.String
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &r.Metadata)
		}
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return out, nil
}

const insertSQL = `INSERT INTO policy_embeddings (id, content, embedding, source_file, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(id) DO NOTHING`

// InsertBatch writes all records in one transaction.
func (s *Storage) InsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	defer tx.Rollback()
	for _, r := range records {
		args, err := insertArgs(r)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, insertSQL, args...); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Storage) InsertOne(ctx context.Context, record domain.EmbeddingRecord) error {
	args, err := insertArgs(record)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertSQL, args...); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Storage) DeleteBySource(ctx context.Context, sourceFile string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM policy_embeddings WHERE source_file = ?`, sourceFile)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func insertArgs(r domain.EmbeddingRecord) ([]any, error) {
	if r.ID == "" {
		return nil, fmt.Errorf("%w: record without id", domain.ErrItemRejected)
	}
	if len(r.Embedding) == 0 {
		return nil, fmt.Errorf("%w: record without embedding", domain.ErrItemRejected)
	}
	emb, err := domain.EncodeEmbedding(r.Embedding)
	if err != nil {
		return nil, err
	}
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", domain.ErrItemRejected, err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return []any{r.ID, r.Content, string(emb), r.SourceFile, string(meta), created.Format(time.RFC3339Nano)}, nil
}

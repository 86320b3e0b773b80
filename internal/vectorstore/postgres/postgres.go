package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"pdfrag/internal/domain"
)

// Table holds the corpus; the similarity_search function reads from it.
const Table = "policy_embeddings"

// undefinedFunction is the SQLSTATE raised when similarity_search is missing.
const undefinedFunction = "42883"

// Storage keeps embedding records in a pgvector-enabled Postgres database.
type Storage struct {
	db    *sql.DB
	lists int
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string, ivfflatLists int) (*Storage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	return New(db, ivfflatLists), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, ivfflatLists int) *Storage {
	if ivfflatLists <= 0 {
		ivfflatLists = 100
	}
	return &Storage{db: db, lists: ivfflatLists}
}

func (s *Storage) Close() error { return s.db.Close() }

// SchemaSQL returns the statements creating the table, its cosine index and
// the similarity_search function for vectors of the given dimension.
func SchemaSQL(dimension, lists int) string {
	return fmt.Sprintf(`CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS %[1]s (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    content TEXT NOT NULL,
    embedding VECTOR(%[2]d) NOT NULL,
    source_file TEXT,
    metadata JSONB,
    created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS %[1]s_embedding_idx
ON %[1]s USING ivfflat (embedding vector_cosine_ops)
WITH (lists = %[3]d);

CREATE INDEX IF NOT EXISTS %[1]s_source_file_idx ON %[1]s (source_file);

CREATE OR REPLACE FUNCTION similarity_search(
    query_embedding VECTOR(%[2]d),
    match_threshold FLOAT DEFAULT 0.7,
    match_count INT DEFAULT 3
)
RETURNS TABLE (
    id UUID,
    content TEXT,
    source_file TEXT,
    metadata JSONB,
    created_at TIMESTAMP WITH TIME ZONE,
    similarity FLOAT
)
LANGUAGE SQL
AS $$
    SELECT
        id, content, source_file, metadata, created_at,
        1 - (embedding <=> query_embedding) AS similarity
    FROM %[1]s
    WHERE 1 - (embedding <=> query_embedding) > match_threshold
    ORDER BY embedding <=> query_embedding
    LIMIT match_count;
$$;
`, Table, dimension, lists)
}

func (s *Storage) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if _, err := s.db.ExecContext(ctx, SchemaSQL(dimension, s.lists)); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Storage) SimilaritySearch(ctx context.Context, vector []float64, threshold float64, count int) ([]domain.ScoredResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, source_file, metadata, created_at, similarity FROM similarity_search($1, $2, $3)`,
		pgvector.NewVector(toFloat32(vector)), threshold, count)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var results []domain.ScoredResult
	for rows.Next() {
		var (
			r       domain.EmbeddingRecord
			source  sql.NullString
			meta    []byte
			created sql.NullTime
			score   float64
		)
		if err := rows.Scan(&r.ID, &r.Content, &source, &meta, &created, &score); err != nil {
			return nil, classify(err)
		}
		r.SourceFile = source.String
		r.Metadata = decodeMetadata(meta)
		r.CreatedAt = created.Time
		results = append(results, domain.ScoredResult{Record: r, Similarity: score, Tier: domain.TierSimilarity})
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return results, nil
}

// Scan reads raw rows; the embedding is fetched in its text form so that a
// bad row only fails its own parse.
func (s *Storage) Scan(ctx context.Context, limit int) ([]domain.StoredRecord, error) {
	var lim sql.NullInt64
	if limit > 0 {
		lim = sql.NullInt64{Int64: int64(limit), Valid: true}
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, embedding::text, source_file, metadata, created_at FROM `+Table+` LIMIT $1`, lim)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []domain.StoredRecord
	for rows.Next() {
		var (
			r       domain.StoredRecord
			emb     []byte
			source  sql.NullString
			meta    []byte
			created sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Content, &emb, &source, &meta, &created); err != nil {
			return nil, classify(err)
		}
		r.RawEmbedding = emb
		r.SourceFile = source.String
		r.Metadata = decodeMetadata(meta)
		r.CreatedAt = created.Time
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

const insertSQL = `INSERT INTO ` + Table + ` (id, content, embedding, source_file, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`

// InsertBatch writes all records in one transaction.
func (s *Storage) InsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return classify(err)
	}
	defer stmt.Close()
	for _, r := range records {
		args, err := insertArgs(r)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return classify(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Storage) InsertOne(ctx context.Context, record domain.EmbeddingRecord) error {
	args, err := insertArgs(record)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, insertSQL, args...); err != nil {
		return classify(err)
	}
	return nil
}

func (s *Storage) DeleteBySource(ctx context.Context, sourceFile string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+Table+` WHERE source_file = $1`, sourceFile)
	if err != nil {
		return 0, classify(err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func insertArgs(r domain.EmbeddingRecord) ([]any, error) {
	meta, err := json.Marshal(r.Metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", domain.ErrItemRejected, err)
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return []any{r.ID, r.Content, pgvector.NewVector(toFloat32(r.Embedding)), r.SourceFile, meta, created}, nil
}

// classify maps driver errors onto the domain taxonomy. A missing
// similarity_search function means the database has no server-side search.
func classify(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedFunction {
		return fmt.Errorf("%w: %v", domain.ErrSimilarityUnsupported, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

func decodeMetadata(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

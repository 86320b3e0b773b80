package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"pdfrag/internal/domain"
)

func TestSchemaSQL(t *testing.T) {
	sql := SchemaSQL(768, 50)
	for _, want := range []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"embedding VECTOR(768) NOT NULL",
		"query_embedding VECTOR(768)",
		"WITH (lists = 50)",
		"FROM policy_embeddings",
		"FUNCTION similarity_search(",
	} {
		if !strings.Contains(sql, want) {
			t.Errorf("schema missing %q", want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"missing function", &pq.Error{Code: "42883", Message: "function similarity_search does not exist"}, domain.ErrSimilarityUnsupported},
		{"missing table", &pq.Error{Code: "42P01"}, domain.ErrStoreUnavailable},
		{"connection", errors.New("dial tcp: connection refused"), domain.ErrStoreUnavailable},
		{"wrapped", fmt.Errorf("query: %w", &pq.Error{Code: "42883"}), domain.ErrSimilarityUnsupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("classify = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeMetadata(t *testing.T) {
	m := decodeMetadata([]byte(`{"page":2,"source_file":"a.pdf"}`))
	if m["source_file"] != "a.pdf" || m["page"] != float64(2) {
		t.Fatalf("metadata = %v", m)
	}
	if decodeMetadata(nil) != nil || decodeMetadata([]byte("{")) != nil {
		t.Fatal("expected nil for empty or invalid metadata")
	}
}

// TestRoundTrip runs against a real database when PDFRAG_TEST_POSTGRES_DSN is set.
func TestRoundTrip(t *testing.T) {
	dsn := os.Getenv("PDFRAG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("PDFRAG_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn, 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	if err := s.EnsureSchema(ctx, 3); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	source := "roundtrip-" + uuid.NewString() + ".pdf"
	defer s.DeleteBySource(ctx, source)

	recs := []domain.EmbeddingRecord{
		{ID: uuid.NewString(), Content: "alpha", Embedding: []float64{1, 0, 0}, SourceFile: source},
		{ID: uuid.NewString(), Content: "beta", Embedding: []float64{0, 1, 0}, SourceFile: source},
	}
	if err := s.InsertBatch(ctx, recs); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	res, err := s.SimilaritySearch(ctx, []float64{1, 0, 0}, 0.5, 3)
	if err != nil {
		t.Fatalf("SimilaritySearch: %v", err)
	}
	found := false
	for _, r := range res {
		if r.Record.ID == recs[0].ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("alpha not returned: %+v", res)
	}
	n, err := s.DeleteBySource(ctx, source)
	if err != nil || n != 2 {
		t.Fatalf("DeleteBySource = %d, %v", n, err)
	}
}

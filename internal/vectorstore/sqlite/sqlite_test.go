package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"pdfrag/internal/domain"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "data", "rag.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func record(id, source string, v ...float64) domain.EmbeddingRecord {
	return domain.EmbeddingRecord{
		ID:         id,
		Content:    "content of " + id,
		Embedding:  v,
		SourceFile: source,
		Metadata:   map[string]any{"source_file": source, "page": 1, "chunk_index": 0},
	}
}

func TestInsertAndScan(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	if err := s.InsertBatch(ctx, []domain.EmbeddingRecord{record("a", "x.pdf", 1, 0), record("b", "x.pdf", 0, 1)}); err != nil {
		t.Fatalf("InsertBatch: %v", err)
	}
	if err := s.InsertOne(ctx, record("c", "y.pdf", 0.5, 0.5)); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}
	recs, err := s.Scan(ctx, 0)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records", len(recs))
	}
	if recs[0].ID != "a" || recs[2].SourceFile != "y.pdf" {
		t.Fatalf("unexpected records: %+v", recs)
	}
	v, err := domain.ParseEmbedding(recs[1].RawEmbedding, 2)
	if err != nil || v[1] != 1 {
		t.Fatalf("embedding = %v, %v", v, err)
	}
	if recs[0].Metadata["source_file"] != "x.pdf" {
		t.Fatalf("metadata = %v", recs[0].Metadata)
	}
	if recs[0].CreatedAt.IsZero() {
		t.Fatal("created_at not set")
	}

	limited, err := s.Scan(ctx, 2)
	if err != nil || len(limited) != 2 {
		t.Fatalf("Scan(2) = %d records, %v", len(limited), err)
	}
}

func TestDuplicateIDIsIgnored(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	if err := s.InsertOne(ctx, record("a", "x.pdf", 1)); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertOne(ctx, record("a", "x.pdf", 2)); err != nil {
		t.Fatalf("second insert: %v", err)
	}
	recs, _ := s.Scan(ctx, 0)
	if len(recs) != 1 {
		t.Fatalf("got %d records", len(recs))
	}
}

func TestBatchWithInvalidRecordWritesNothing(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	err := s.InsertBatch(ctx, []domain.EmbeddingRecord{record("a", "x.pdf", 1), record("b", "x.pdf")})
	if !errors.Is(err, domain.ErrItemRejected) {
		t.Fatalf("err = %v", err)
	}
	recs, _ := s.Scan(ctx, 0)
	if len(recs) != 0 {
		t.Fatalf("partial batch committed: %d records", len(recs))
	}
}

func TestSimilarityUnsupported(t *testing.T) {
	s := openTemp(t)
	_, err := s.SimilaritySearch(context.Background(), []float64{1}, 0.7, 3)
	if !errors.Is(err, domain.ErrSimilarityUnsupported) {
		t.Fatalf("err = %v", err)
	}
}

func TestDeleteBySource(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	_ = s.InsertBatch(ctx, []domain.EmbeddingRecord{record("a", "x.pdf", 1), record("b", "y.pdf", 1), record("c", "x.pdf", 1)})
	n, err := s.DeleteBySource(ctx, "x.pdf")
	if err != nil || n != 2 {
		t.Fatalf("DeleteBySource = %d, %v", n, err)
	}
	recs, _ := s.Scan(ctx, 0)
	if len(recs) != 1 || recs[0].ID != "b" {
		t.Fatalf("remaining = %+v", recs)
	}
}

func TestNonFiniteEmbeddingRejected(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	err := s.InsertOne(ctx, record("inf", "x.pdf", 1, math.Inf(1)))
	if !errors.Is(err, domain.ErrItemRejected) {
		t.Fatalf("err = %v", err)
	}
	recs, _ := s.Scan(ctx, 0)
	if len(recs) != 0 {
		t.Fatalf("stored %d records", len(recs))
	}
}

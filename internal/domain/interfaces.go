package domain

import (
	"context"
	"time"
)

// Page is the extracted text of a single page of a source document.
type Page struct {
	Number int
	Text   string
}

// Document is a loaded source file split into ordered pages.
type Document struct {
	ID    string
	Path  string
	Pages []Page
}

// Chunk is a bounded text segment derived from a source document.
// Overlap counts the leading runes of Text copied from the previous chunk
// of the same page.
type Chunk struct {
	SourceID string
	Index    int
	Page     int
	Text     string
	Overlap  int
}

// Embedded pairs a chunk with its embedding vector.
type Embedded struct {
	Chunk  Chunk
	Vector []float64
}

// EmbeddingRecord is the persisted unit of the corpus.
type EmbeddingRecord struct {
	ID         string
	Content    string
	Embedding  []float64
	SourceFile string
	Metadata   map[string]any
	CreatedAt  time.Time
}

// StoredRecord is a record read back by an unfiltered scan. The embedding is
// kept in its serialized form so each record can be validated on its own.
type StoredRecord struct {
	ID           string
	Content      string
	RawEmbedding []byte
	SourceFile   string
	Metadata     map[string]any
	CreatedAt    time.Time
}

// Tier names the search path that produced a result.
type Tier string

const (
	TierSimilarity Tier = "similarity"
	TierScan       Tier = "scan"
)

// ScoredResult is a record with its relevance to a query. Results from the
// similarity tier may carry no embedding.
type ScoredResult struct {
	Record     EmbeddingRecord
	Similarity float64
	Tier       Tier
}

// VectorStore persists embedding records and exposes both an index-accelerated
// similarity search and a raw scan.
type VectorStore interface {
	// SimilaritySearch returns up to count records scoring above threshold,
	// most similar first. Stores without server-side search return
	// ErrSimilarityUnsupported.
	SimilaritySearch(ctx context.Context, vector []float64, threshold float64, count int) ([]ScoredResult, error)
	// Scan returns up to limit records in no particular order.
	Scan(ctx context.Context, limit int) ([]StoredRecord, error)
	InsertBatch(ctx context.Context, records []EmbeddingRecord) error
	InsertOne(ctx context.Context, record EmbeddingRecord) error
}

// SchemaManager is implemented by stores that need tables, collections or
// functions created before use.
type SchemaManager interface {
	EnsureSchema(ctx context.Context, dimension int) error
}

// SourcePurger is implemented by stores that support deleting every record of
// a source file. Deletion is an administrative operation.
type SourcePurger interface {
	DeleteBySource(ctx context.Context, sourceFile string) (int, error)
}

// Chunker splits the pages of a document into chunks.
type Chunker interface {
	Split(pages []Page, sourceID string) []Chunk
}

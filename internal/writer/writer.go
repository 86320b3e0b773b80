package writer

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
)

// DefaultBatchSize is the number of records sent to the store per insert.
const DefaultBatchSize = 10

// IDMode decides how record IDs are assigned.
type IDMode string

const (
	// IDRandom gives every record a fresh UUID; re-ingesting a file duplicates it.
	IDRandom IDMode = "random"
	// IDContent derives the UUID from source file and content so repeated
	// ingestion of the same chunk maps onto the same record.
	IDContent IDMode = "content"
)

// contentNamespace scopes content-derived record IDs.
var contentNamespace = uuid.MustParse("9b1c3a53-6a52-4d35-a0f4-1c9f2f7f8e20")

// Failed is a record the store refused both in its batch and on its own.
type Failed struct {
	Record domain.EmbeddingRecord
	Err    error
}

// Report summarizes a write. Written < Attempted signals loss.
type Report struct {
	Attempted int
	Written   int
	Failed    []Failed
}

type Option func(*Writer)

func WithBatchSize(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithIDMode(m IDMode) Option {
	return func(w *Writer) { w.idMode = m }
}

func WithLogger(log logr.Logger) Option {
	return func(w *Writer) { w.log = log }
}

// Writer persists records in batches and retries a failed batch one record
// at a time.
type Writer struct {
	store     domain.VectorStore
	batchSize int
	idMode    IDMode
	log       logr.Logger
	now       func() time.Time
}

func New(store domain.VectorStore, opts ...Option) *Writer {
	w := &Writer{
		store:     store,
		batchSize: DefaultBatchSize,
		idMode:    IDRandom,
		log:       logr.Discard(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteEmbedded turns chunk/vector pairs into records and writes them.
// sourceFile overrides the chunk's source ID in the stored record when set.
func (w *Writer) WriteEmbedded(ctx context.Context, pairs []domain.Embedded, sourceFile string) Report {
	return w.Write(ctx, w.Records(pairs, sourceFile))
}

// Records builds one record per pair with metadata {source_file, page, chunk_index}.
func (w *Writer) Records(pairs []domain.Embedded, sourceFile string) []domain.EmbeddingRecord {
	now := w.now()
	records := make([]domain.EmbeddingRecord, len(pairs))
	for i, p := range pairs {
		src := sourceFile
		if src == "" {
			src = p.Chunk.SourceID
		}
		records[i] = domain.EmbeddingRecord{
			ID:         w.recordID(src, p.Chunk.Text),
			Content:    p.Chunk.Text,
			Embedding:  p.Vector,
			SourceFile: src,
			Metadata: map[string]any{
				"source_file": src,
				"page":        p.Chunk.Page,
				"chunk_index": p.Chunk.Index,
			},
			CreatedAt: now,
		}
	}
	return records
}

func (w *Writer) recordID(source, content string) string {
	if w.idMode == IDContent {
		return uuid.NewSHA1(contentNamespace, []byte(source+"\x00"+content)).String()
	}
	return uuid.NewString()
}

// Write inserts records in order. A failed batch does not affect other
// batches, and already written batches are never rolled back.
func (w *Writer) Write(ctx context.Context, records []domain.EmbeddingRecord) Report {
	rep := Report{Attempted: len(records)}
	for start, n := 0, 0; start < len(records); start, n = start+w.batchSize, n+1 {
		batch := records[start:min(start+w.batchSize, len(records))]
		err := w.store.InsertBatch(ctx, batch)
		if err == nil {
			rep.Written += len(batch)
			metrics.WriteBatches.WithLabelValues("ok").Inc()
			metrics.Records.WithLabelValues("written").Add(float64(len(batch)))
			w.log.V(1).Info("stored batch", "batch", n+1, "size", len(batch))
			continue
		}

		metrics.WriteBatches.WithLabelValues("degraded").Inc()
		w.log.Info("batch insert failed, retrying records individually", "batch", n+1, "size", len(batch), "error", err.Error())
		for _, r := range batch {
			if err := w.store.InsertOne(ctx, r); err != nil {
				w.log.Error(err, "dropping record", "id", r.ID, "source", r.SourceFile)
				metrics.Records.WithLabelValues("failed").Inc()
				rep.Failed = append(rep.Failed, Failed{Record: r, Err: err})
				continue
			}
			rep.Written++
			metrics.Records.WithLabelValues("written").Inc()
		}
	}
	return rep
}

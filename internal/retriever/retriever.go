package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
)

const (
	DefaultThreshold = 0.7
	DefaultLimit     = 3
	DefaultScanLimit = 1000
)

var tracer = otel.Tracer("pdfrag/retriever")

// QueryEmbedder turns a query into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

type Config struct {
	// Threshold is passed to the similarity tier unchanged, so the zero
	// Config admits every score above 0. DefaultConfig sets DefaultThreshold.
	Threshold float64
	Limit     int
	ScanLimit int
	// Dimension, when positive, is required of every scanned embedding.
	Dimension int
	// FallbackOnEmpty scans the store when the similarity tier succeeds
	// with no results.
	FallbackOnEmpty bool
}

// DefaultConfig scans on empty similarity results.
func DefaultConfig() Config {
	return Config{
		Threshold:       DefaultThreshold,
		Limit:           DefaultLimit,
		ScanLimit:       DefaultScanLimit,
		FallbackOnEmpty: true,
	}
}

// Retriever answers a query with the most similar stored chunks. It asks
// the store's similarity search first and ranks a raw scan itself when that
// fails or finds nothing.
type Retriever struct {
	embedder QueryEmbedder
	store    domain.VectorStore
	cfg      Config
	log      logr.Logger
}

func New(embedder QueryEmbedder, store domain.VectorStore, cfg Config, log logr.Logger) *Retriever {
	if cfg.Limit < 1 {
		cfg.Limit = DefaultLimit
	}
	if cfg.ScanLimit < 1 {
		cfg.ScanLimit = DefaultScanLimit
	}
	return &Retriever{embedder: embedder, store: store, cfg: cfg, log: log}
}

// Search returns up to limit results, most similar first. The only error is
// a failure to embed the query; when neither tier yields anything the result
// is empty. limit < 1 means the configured default.
func (r *Retriever) Search(ctx context.Context, query string, limit int) ([]domain.ScoredResult, error) {
	if limit < 1 {
		limit = r.cfg.Limit
	}
	ctx, span := tracer.Start(ctx, "retriever.Search")
	defer span.End()
	start := time.Now()

	vec, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embed query")
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.store.SimilaritySearch(ctx, vec, r.cfg.Threshold, limit)
	switch {
	case err == nil && len(results) > 0:
		for i := range results {
			results[i].Tier = domain.TierSimilarity
		}
		r.observe(span, start, domain.TierSimilarity, len(results))
		return results, nil
	case err == nil && !r.cfg.FallbackOnEmpty:
		r.observe(span, start, "none", 0)
		return []domain.ScoredResult{}, nil
	case err == nil:
		metrics.Fallbacks.WithLabelValues("empty").Inc()
		r.log.V(1).Info("similarity search found nothing, scanning")
	case errors.Is(err, domain.ErrSimilarityUnsupported):
		metrics.Fallbacks.WithLabelValues("unsupported").Inc()
		r.log.V(1).Info("similarity search unsupported, scanning")
	default:
		metrics.Fallbacks.WithLabelValues("error").Inc()
		r.log.Info("similarity search failed, scanning", "error", err.Error())
	}

	results = r.scan(ctx, vec, limit)
	tier := domain.TierScan
	if len(results) == 0 {
		tier = "none"
	}
	r.observe(span, start, tier, len(results))
	return results, nil
}

// scan ranks raw records by cosine similarity to vec.
func (r *Retriever) scan(ctx context.Context, vec []float64, limit int) []domain.ScoredResult {
	records, err := r.store.Scan(ctx, r.cfg.ScanLimit)
	if err != nil {
		r.log.Error(err, "fallback scan failed")
		return []domain.ScoredResult{}
	}
	results := make([]domain.ScoredResult, 0, len(records))
	for _, rec := range records {
		emb, err := domain.ParseEmbedding(rec.RawEmbedding, r.cfg.Dimension)
		if err == nil && r.cfg.Dimension == 0 && len(emb) != len(vec) {
			err = fmt.Errorf("%w: dimension %d, want %d", domain.ErrMalformedRecord, len(emb), len(vec))
		}
		if err != nil {
			metrics.MalformedRecords.Inc()
			r.log.V(1).Info("skipping record", "id", rec.ID, "error", err.Error())
			continue
		}
		results = append(results, domain.ScoredResult{
			Record: domain.EmbeddingRecord{
				ID:         rec.ID,
				Content:    rec.Content,
				Embedding:  emb,
				SourceFile: rec.SourceFile,
				Metadata:   rec.Metadata,
				CreatedAt:  rec.CreatedAt,
			},
			Similarity: domain.Cosine(vec, emb),
			Tier:       domain.TierScan,
		})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func (r *Retriever) observe(span trace.Span, start time.Time, tier domain.Tier, n int) {
	metrics.Searches.WithLabelValues(string(tier)).Inc()
	metrics.SearchDuration.WithLabelValues(string(tier)).Observe(time.Since(start).Seconds())
	span.SetAttributes(
		attribute.String("retriever.tier", string(tier)),
		attribute.Int("retriever.results", n),
	)
}

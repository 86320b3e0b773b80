package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"pdfrag/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine similarity.
// With similarity disabled it behaves like a store without a search index.
type Storage struct {
	mu         sync.RWMutex
	records    []domain.EmbeddingRecord
	ids        map[string]struct{}
	similarity bool
}

type Option func(*Storage)

// WithoutSimilarity makes SimilaritySearch return domain.ErrSimilarityUnsupported.
func WithoutSimilarity() Option {
	return func(s *Storage) { s.similarity = false }
}

func NewStorage(opts ...Option) *Storage {
	s := &Storage{ids: make(map[string]struct{}), similarity: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) SimilaritySearch(ctx context.Context, vector []float64, threshold float64, count int) ([]domain.ScoredResult, error) {
	if !s.similarity {
		return nil, domain.ErrSimilarityUnsupported
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []domain.ScoredResult
	for _, r := range s.records {
		score := domain.Cosine(r.Embedding, vector)
		if score > threshold {
			results = append(results, domain.ScoredResult{Record: r, Similarity: score, Tier: domain.TierSimilarity})
		}
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if count > 0 && len(results) > count {
		results = results[:count]
	}
	return results, nil
}

func (s *Storage) Scan(ctx context.Context, limit int) ([]domain.StoredRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.StoredRecord, n)
	for i, r := range s.records[:n] {
		// validate already encoded every stored embedding once
		raw, _ := domain.EncodeEmbedding(r.Embedding)
		out[i] = domain.StoredRecord{
			ID:           r.ID,
			Content:      r.Content,
			RawEmbedding: raw,
			SourceFile:   r.SourceFile,
			Metadata:     r.Metadata,
			CreatedAt:    r.CreatedAt,
		}
	}
	return out, nil
}

// InsertBatch is all-or-nothing: a batch containing an invalid record
// stores nothing.
func (s *Storage) InsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error {
	for _, r := range records {
		if err := validate(r); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.add(r)
	}
	return nil
}

func (s *Storage) InsertOne(ctx context.Context, record domain.EmbeddingRecord) error {
	if err := validate(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.add(record)
	return nil
}

func (s *Storage) DeleteBySource(ctx context.Context, sourceFile string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	removed := 0
	for _, r := range s.records {
		if r.SourceFile == sourceFile {
			delete(s.ids, r.ID)
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

// Len returns the number of stored records.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// add keeps the first record stored under an ID.
func (s *Storage) add(r domain.EmbeddingRecord) {
	if _, ok := s.ids[r.ID]; ok {
		return
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	s.ids[r.ID] = struct{}{}
	s.records = append(s.records, r)
}

func validate(r domain.EmbeddingRecord) error {
	if r.ID == "" {
		return fmt.Errorf("%w: record without id", domain.ErrItemRejected)
	}
	if len(r.Embedding) == 0 {
		return fmt.Errorf("%w: record without embedding", domain.ErrItemRejected)
	}
	_, err := domain.EncodeEmbedding(r.Embedding)
	return err
}

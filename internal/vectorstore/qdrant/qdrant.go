package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"pdfrag/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// It assumes cosine distance and creates the collection if missing.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	ensured bool
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// EnsureSchema creates the collection unless it already exists. It only
// talks to the server once per Storage.
func (s *Storage) EnsureSchema(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	err := s.do(ctx, http.MethodGet, s.collectionURL(""), nil, nil)
	var se *statusError
	switch {
	case err == nil:
	case errors.As(err, &se) && se.code == http.StatusNotFound:
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if err := s.do(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return storeErr(err)
		}
	default:
		return storeErr(err)
	}
	s.ensured = true
	return nil
}

type payload struct {
	Content    string         `json:"content"`
	SourceFile string         `json:"source_file"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (s *Storage) SimilaritySearch(ctx context.Context, vector []float64, threshold float64, count int) ([]domain.ScoredResult, error) {
	req := map[string]any{
		"vector":          vector,
		"limit":           count,
		"with_payload":    true,
		"score_threshold": threshold,
	}
	var resp struct {
		Result []struct {
			ID      any     `json:"id"`
			Score   float64 `json:"score"`
			Payload payload `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, storeErr(err)
	}
	results := make([]domain.ScoredResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.ScoredResult{
			Record: domain.EmbeddingRecord{
				ID:         fmt.Sprint(r.ID),
				Content:    r.Payload.Content,
				SourceFile: r.Payload.SourceFile,
				Metadata:   r.Payload.Metadata,
				CreatedAt:  r.Payload.CreatedAt,
			},
			Similarity: r.Score,
			Tier:       domain.TierSimilarity,
		})
	}
	return results, nil
}

// Scan pages through the collection with the scroll API. Vectors are kept
// as raw JSON for the caller to validate.
func (s *Storage) Scan(ctx context.Context, limit int) ([]domain.StoredRecord, error) {
	const page = 256
	var (
		out    []domain.StoredRecord
		offset any
	)
	for {
		n := page
		if limit > 0 && limit-len(out) < n {
			n = limit - len(out)
		}
		req := map[string]any{
			"limit":        n,
			"with_payload": true,
			"with_vector":  true,
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					ID      any             `json:"id"`
					Vector  json.RawMessage `json:"vector"`
					Payload payload         `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp); err != nil {
			return nil, storeErr(err)
		}
		for _, p := range resp.Result.Points {
			out = append(out, domain.StoredRecord{
				ID:           fmt.Sprint(p.ID),
				Content:      p.Payload.Content,
				RawEmbedding: p.Vector,
				SourceFile:   p.Payload.SourceFile,
				Metadata:     p.Payload.Metadata,
				CreatedAt:    p.Payload.CreatedAt,
			})
		}
		offset = resp.Result.NextPageOffset
		if offset == nil || len(resp.Result.Points) == 0 || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
	}
}

// InsertBatch upserts all records in one request.
func (s *Storage) InsertBatch(ctx context.Context, records []domain.EmbeddingRecord) error {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		created := r.CreatedAt
		if created.IsZero() {
			created = time.Now().UTC()
		}
		points[i] = map[string]any{
			"id":     r.ID,
			"vector": r.Embedding,
			"payload": payload{
				Content:    r.Content,
				SourceFile: r.SourceFile,
				Metadata:   r.Metadata,
				CreatedAt:  created,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
		return writeErr(err)
	}
	return nil
}

func (s *Storage) InsertOne(ctx context.Context, record domain.EmbeddingRecord) error {
	return s.InsertBatch(ctx, []domain.EmbeddingRecord{record})
}

func (s *Storage) DeleteBySource(ctx context.Context, sourceFile string) (int, error) {
	filter := map[string]any{
		"must": []map[string]any{
			{"key": "source_file", "match": map[string]any{"value": sourceFile}},
		},
	}
	var counted struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/count"), map[string]any{"filter": filter, "exact": true}, &counted); err != nil {
		return 0, storeErr(err)
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL("/points/delete?wait=true"), map[string]any{"filter": filter}, nil); err != nil {
		return 0, storeErr(err)
	}
	return counted.Result.Count, nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

type statusError struct {
	method, url string
	code        int
	status      string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.status)
}

func (s *Storage) do(ctx context.Context, method, url string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{method: method, url: url, code: resp.StatusCode, status: resp.Status}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}

// writeErr rejects the records on a client error and blames the store otherwise.
func writeErr(err error) error {
	var se *statusError
	if errors.As(err, &se) && se.code >= 400 && se.code < 500 {
		return fmt.Errorf("%w: %v", domain.ErrItemRejected, err)
	}
	return storeErr(err)
}

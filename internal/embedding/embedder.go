package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"pdfrag/internal/domain"
	"pdfrag/internal/metrics"
)

// DefaultBatchSize is the number of chunks sent to the provider per request.
const DefaultBatchSize = 20

// Provider converts free text into numeric vectors.
// EmbedBatch must return one vector per input, in input order.
type Provider interface {
	Name() string
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
	EmbedOne(ctx context.Context, text string) ([]float64, error)
}

// Skipped is a chunk the provider refused individually.
type Skipped struct {
	Chunk domain.Chunk
	Err   error
}

// Result of embedding a run of chunks. Pairs keep the input order.
// When Embed aborts early, Attempted exceeds len(Pairs)+len(Skipped).
type Result struct {
	Pairs     []domain.Embedded
	Skipped   []Skipped
	Attempted int
}

type Option func(*Batcher)

func WithBatchSize(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithDimension makes the batcher reject vectors of any other length.
func WithDimension(d int) Option {
	return func(b *Batcher) { b.dimension = d }
}

// WithConcurrency lets up to n batches be in flight at once.
func WithConcurrency(n int) Option {
	return func(b *Batcher) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

func WithLogger(log logr.Logger) Option {
	return func(b *Batcher) { b.log = log }
}

// Batcher embeds chunks in fixed-size batches. A failed batch is retried one
// chunk at a time so a single bad chunk only costs itself.
type Batcher struct {
	provider    Provider
	batchSize   int
	dimension   int
	concurrency int
	log         logr.Logger
}

func NewBatcher(p Provider, opts ...Option) *Batcher {
	b := &Batcher{
		provider:    p,
		batchSize:   DefaultBatchSize,
		concurrency: 1,
		log:         logr.Discard(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Batcher) Name() string { return b.provider.Name() }

// Dimension returns the enforced vector length, or 0 when unchecked.
func (b *Batcher) Dimension() int { return b.dimension }

// EmbedQuery embeds a single query string.
func (b *Batcher) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	v, err := b.provider.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := b.checkDimension(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Embed embeds chunks and returns the successful pairs in input order.
// A provider-unavailable error on any chunk stops the run; the pairs
// gathered so far are returned alongside the error.
func (b *Batcher) Embed(ctx context.Context, chunks []domain.Chunk) (Result, error) {
	res := Result{Attempted: len(chunks)}
	batches := partition(chunks, b.batchSize)
	if b.concurrency > 1 && len(batches) > 1 {
		return b.embedParallel(ctx, batches, res)
	}
	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out := b.embedBatch(ctx, i, batch)
		res.Pairs = append(res.Pairs, out.pairs...)
		res.Skipped = append(res.Skipped, out.skipped...)
		if out.err != nil {
			return res, out.err
		}
	}
	return res, nil
}

// embedParallel keeps outputs in batch order. Once a batch fails terminally
// no new batches are started and output stops at the first batch that failed
// or never ran, so the result is a prefix of the sequential one.
func (b *Batcher) embedParallel(ctx context.Context, batches [][]domain.Chunk, res Result) (Result, error) {
	outcomes := make([]batchOutcome, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, batch := range batches {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outcomes[i] = batchOutcome{err: err}
				return nil
			}
			outcomes[i] = b.embedBatch(gctx, i, batch)
			return outcomes[i].err
		})
	}
	err := g.Wait()
	res = collect(res, outcomes)
	if err == nil {
		err = ctx.Err()
	}
	return res, err
}

// collect appends outcomes in batch order up to and including the first
// failed one.
func collect(res Result, outcomes []batchOutcome) Result {
	for _, out := range outcomes {
		res.Pairs = append(res.Pairs, out.pairs...)
		res.Skipped = append(res.Skipped, out.skipped...)
		if out.err != nil {
			break
		}
	}
	return res
}

type batchOutcome struct {
	pairs   []domain.Embedded
	skipped []Skipped
	err     error
}

func (b *Batcher) embedBatch(ctx context.Context, n int, batch []domain.Chunk) batchOutcome {
	texts := make([]string, len(batch))
	for i, ch := range batch {
		texts[i] = ch.Text
	}
	vecs, err := b.provider.EmbedBatch(ctx, texts)
	if err == nil {
		err = b.checkBatch(vecs, len(batch))
	}
	if err == nil {
		out := batchOutcome{pairs: make([]domain.Embedded, len(batch))}
		for i, ch := range batch {
			out.pairs[i] = domain.Embedded{Chunk: ch, Vector: vecs[i]}
		}
		metrics.EmbedBatches.WithLabelValues("ok").Inc()
		metrics.EmbedItems.WithLabelValues("embedded").Add(float64(len(batch)))
		b.log.V(1).Info("embedded batch", "batch", n+1, "size", len(batch))
		return out
	}

	metrics.EmbedBatches.WithLabelValues("degraded").Inc()
	b.log.Info("batch embedding failed, retrying chunks individually", "batch", n+1, "size", len(batch), "error", err.Error())

	var out batchOutcome
	for _, ch := range batch {
		if err := ctx.Err(); err != nil {
			out.err = err
			return out
		}
		v, err := b.provider.EmbedOne(ctx, ch.Text)
		if err == nil {
			err = b.checkDimension(v)
		}
		if err != nil {
			if errors.Is(err, domain.ErrProviderUnavailable) {
				out.err = fmt.Errorf("embed chunk %d of %s: %w", ch.Index, ch.SourceID, err)
				return out
			}
			b.log.Error(err, "skipping chunk", "source", ch.SourceID, "chunk", ch.Index)
			metrics.EmbedItems.WithLabelValues("skipped").Inc()
			out.skipped = append(out.skipped, Skipped{Chunk: ch, Err: err})
			continue
		}
		metrics.EmbedItems.WithLabelValues("embedded").Inc()
		out.pairs = append(out.pairs, domain.Embedded{Chunk: ch, Vector: v})
	}
	return out
}

func (b *Batcher) checkBatch(vecs [][]float64, want int) error {
	if len(vecs) != want {
		return fmt.Errorf("%w: provider returned %d vectors for %d texts", domain.ErrItemRejected, len(vecs), want)
	}
	for _, v := range vecs {
		if err := b.checkDimension(v); err != nil {
			return err
		}
	}
	return nil
}

func (b *Batcher) checkDimension(v []float64) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", domain.ErrItemRejected)
	}
	if b.dimension > 0 && len(v) != b.dimension {
		return fmt.Errorf("%w: vector dimension %d, want %d", domain.ErrItemRejected, len(v), b.dimension)
	}
	return nil
}

func partition(chunks []domain.Chunk, size int) [][]domain.Chunk {
	var out [][]domain.Chunk
	for start := 0; start < len(chunks); start += size {
		end := min(start+size, len(chunks))
		out = append(out, chunks[start:end])
	}
	return out
}

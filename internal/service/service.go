package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"pdfrag/internal/answer"
	"pdfrag/internal/document"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/retriever"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/writer"
)

var (
	// ErrNoDocuments means the ingest paths named no .pdf or .txt files.
	ErrNoDocuments = errors.New("no .pdf or .txt documents found")
	// ErrNoContext means retrieval found nothing to answer from.
	ErrNoContext = errors.New("no relevant context found")
	// ErrPurgeUnsupported is returned when the store cannot delete by source.
	ErrPurgeUnsupported = errors.New("store does not support deleting by source")
)

var tracer = otel.Tracer("pdfrag/service")

// Deps are the collaborators of a Service. All are required except Composer,
// which only Ask needs, and Logger.
type Deps struct {
	Chunker   domain.Chunker
	Embedder  *embedding.Batcher
	Store     domain.VectorStore
	Writer    *writer.Writer
	Retriever *retriever.Retriever
	Composer  answer.Composer
	Logger    logr.Logger
}

// Service drives ingestion (load, chunk, embed, store) and querying.
type Service struct {
	Deps
}

func New(d Deps) *Service {
	if d.Logger.GetSink() == nil {
		d.Logger = logr.Discard()
	}
	return &Service{Deps: d}
}

// FileReport is the outcome of ingesting one document.
type FileReport struct {
	Path     string
	Pages    int
	Chunks   int
	Embedded int
	Skipped  []embedding.Skipped
	Written  int
	Failed   []writer.Failed
	Err      error
}

// OK reports whether every chunk of the file reached the store.
func (r FileReport) OK() bool {
	return r.Err == nil && r.Chunks > 0 && r.Written == r.Chunks
}

// IngestReport summarizes a multi-file ingestion.
type IngestReport struct {
	Files []FileReport
}

func (r IngestReport) Succeeded() int {
	n := 0
	for _, f := range r.Files {
		if f.OK() {
			n++
		}
	}
	return n
}

func (r IngestReport) Written() int {
	n := 0
	for _, f := range r.Files {
		n += f.Written
	}
	return n
}

// Ingest loads every document the paths name and stores its chunks. A file
// that fails to load is reported and skipped; an unavailable embedding
// provider stops the run.
func (s *Service) Ingest(ctx context.Context, paths []string) (IngestReport, error) {
	var rep IngestReport
	files, err := document.Discover(paths)
	if err != nil {
		return rep, err
	}
	if len(files) == 0 {
		return rep, ErrNoDocuments
	}
	if err := vectorstore.EnsureSchema(ctx, s.Store, s.Embedder.Dimension()); err != nil {
		return rep, fmt.Errorf("prepare store: %w", err)
	}
	for i, path := range files {
		s.Logger.Info("processing document", "file", path, "n", i+1, "of", len(files))
		doc, err := document.Load(path)
		if err != nil {
			s.Logger.Error(err, "failed to load document", "file", path)
			rep.Files = append(rep.Files, FileReport{Path: path, Err: err})
			continue
		}
		fr, err := s.IngestDocument(ctx, doc)
		rep.Files = append(rep.Files, fr)
		if err != nil {
			return rep, err
		}
	}
	s.Logger.Info("ingestion finished", "files", len(files), "succeeded", rep.Succeeded(), "records", rep.Written())
	return rep, nil
}

// IngestDocument chunks, embeds and stores one loaded document. The error
// is non-nil only when the run must stop; per-chunk and per-record losses
// are in the report.
func (s *Service) IngestDocument(ctx context.Context, doc domain.Document) (FileReport, error) {
	ctx, span := tracer.Start(ctx, "service.IngestDocument")
	defer span.End()
	span.SetAttributes(attribute.String("document.id", doc.ID))

	fr := FileReport{Path: doc.Path, Pages: len(doc.Pages)}
	chunks := s.Chunker.Split(doc.Pages, doc.ID)
	fr.Chunks = len(chunks)
	if len(chunks) == 0 {
		s.Logger.Info("document has no text", "file", doc.Path)
		return fr, nil
	}

	res, err := s.Embedder.Embed(ctx, chunks)
	fr.Embedded = len(res.Pairs)
	fr.Skipped = res.Skipped
	if err != nil {
		// Keep whatever was embedded before the provider went away.
		s.Logger.Error(err, "embedding stopped", "file", doc.Path, "embedded", len(res.Pairs), "of", len(chunks))
		fr.Err = err
	}
	if len(res.Pairs) > 0 {
		wr := s.Writer.WriteEmbedded(ctx, res.Pairs, doc.ID)
		fr.Written = wr.Written
		fr.Failed = wr.Failed
	}
	span.SetAttributes(
		attribute.Int("document.chunks", fr.Chunks),
		attribute.Int("document.written", fr.Written),
	)
	s.Logger.Info("document stored", "file", doc.Path, "pages", fr.Pages, "chunks", fr.Chunks,
		"embedded", fr.Embedded, "written", fr.Written)
	return fr, err
}

// Search returns the stored chunks most similar to query.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]domain.ScoredResult, error) {
	return s.Retriever.Search(ctx, query, limit)
}

// Answer is a composed answer with the context it was built from.
type Answer struct {
	Text     string
	Contexts []domain.ScoredResult
}

// Ask retrieves context for query and composes an answer from it.
func (s *Service) Ask(ctx context.Context, query string, limit int) (Answer, error) {
	ctx, span := tracer.Start(ctx, "service.Ask")
	defer span.End()

	if s.Composer == nil {
		return Answer{}, errors.New("no answer composer configured")
	}
	contexts, err := s.Retriever.Search(ctx, query, limit)
	if err != nil {
		return Answer{}, err
	}
	if len(contexts) == 0 {
		return Answer{}, ErrNoContext
	}
	text, err := s.Composer.Compose(ctx, query, contexts)
	if err != nil {
		return Answer{Contexts: contexts}, fmt.Errorf("compose answer: %w", err)
	}
	span.SetAttributes(attribute.String("answer.composer", s.Composer.Name()), attribute.Int("answer.contexts", len(contexts)))
	return Answer{Text: text, Contexts: contexts}, nil
}

// Purge deletes every record of a source file.
func (s *Service) Purge(ctx context.Context, sourceFile string) (int, error) {
	p, ok := s.Store.(domain.SourcePurger)
	if !ok {
		return 0, ErrPurgeUnsupported
	}
	return p.DeleteBySource(ctx, sourceFile)
}

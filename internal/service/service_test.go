package service_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pdfrag/internal/answer"
	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/hashing"
	"pdfrag/internal/retriever"
	"pdfrag/internal/service"
	"pdfrag/internal/vectorstore/memory"
	"pdfrag/internal/writer"
)

const dim = 256

// policyText builds n characters of numbered clauses so that every chunk
// has a distinct vocabulary.
func policyText(n int) string {
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		fmt.Fprintf(&b, "Clause %d requires control%d to be reviewed by team%d. ", i, i, i%7)
		if i%6 == 5 {
			b.WriteString("\n")
		}
	}
	return b.String()[:n]
}

// downProvider wraps a provider and reports the backend unavailable once
// a text containing trigger is seen.
type downProvider struct {
	embedding.Provider
	trigger string
}

func (d downProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	for _, t := range texts {
		if strings.Contains(t, d.trigger) {
			return nil, domain.ErrProviderUnavailable
		}
	}
	return d.Provider.EmbedBatch(ctx, texts)
}

func (d downProvider) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	if strings.Contains(text, d.trigger) {
		return nil, domain.ErrProviderUnavailable
	}
	return d.Provider.EmbedOne(ctx, text)
}

var _ = Describe("Service", func() {
	var (
		ctx   context.Context
		store *memory.Storage
		svc   *service.Service
		split *chunker.RecursiveChunker
	)

	build := func(p embedding.Provider, s *memory.Storage) *service.Service {
		batcher := embedding.NewBatcher(p, embedding.WithDimension(dim))
		return service.New(service.Deps{
			Chunker:   split,
			Embedder:  batcher,
			Store:     s,
			Writer:    writer.New(s),
			Retriever: retriever.New(batcher, s, retriever.DefaultConfig(), GinkgoLogr),
			Composer:  answer.NewExtractive(3),
			Logger:    GinkgoLogr,
		})
	}

	BeforeEach(func() {
		ctx = context.Background()
		split = chunker.NewRecursiveChunker(chunker.DefaultChunkSize, chunker.DefaultChunkOverlap)
		store = memory.NewStorage(memory.WithoutSimilarity())
		svc = build(hashing.NewEmbedder(dim), store)
	})

	Context("ingesting a single-page document of 2500 characters", func() {
		var (
			doc    domain.Document
			chunks []domain.Chunk
		)

		BeforeEach(func() {
			doc = domain.Document{ID: "policy.pdf", Path: "policy.pdf", Pages: []domain.Page{{Number: 1, Text: policyText(2500)}}}
			chunks = split.Split(doc.Pages, doc.ID)
		})

		It("stores one record per chunk", func() {
			Expect(chunks).To(HaveLen(3))
			rep, err := svc.IngestDocument(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Chunks).To(Equal(3))
			Expect(rep.Embedded).To(Equal(3))
			Expect(rep.Written).To(Equal(3))
			Expect(rep.OK()).To(BeTrue())
			Expect(store.Len()).To(Equal(3))
		})

		It("finds the second chunk through the fallback scan", func() {
			_, err := svc.IngestDocument(ctx, doc)
			Expect(err).NotTo(HaveOccurred())

			results, err := svc.Search(ctx, chunks[1].Text, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Record.Content).To(Equal(chunks[1].Text))
			Expect(results[0].Similarity).To(BeNumerically("~", 1.0, 1e-9))
			Expect(results[0].Tier).To(Equal(domain.TierScan))
			Expect(results[0].Record.Metadata).To(HaveKeyWithValue("chunk_index", 1))
			Expect(results[0].Record.Metadata).To(HaveKeyWithValue("page", 1))
		})

		It("uses the similarity tier when the store supports it", func() {
			store = memory.NewStorage()
			svc = build(hashing.NewEmbedder(dim), store)
			_, err := svc.IngestDocument(ctx, doc)
			Expect(err).NotTo(HaveOccurred())

			results, err := svc.Search(ctx, chunks[2].Text, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(results).To(HaveLen(1))
			Expect(results[0].Tier).To(Equal(domain.TierSimilarity))
			Expect(results[0].Record.Content).To(Equal(chunks[2].Text))
		})

		It("keeps what was embedded when the provider goes away", func() {
			svc = build(downProvider{Provider: hashing.NewEmbedder(dim), trigger: "Clause 40 "}, store)
			rep, err := svc.IngestDocument(ctx, doc)
			Expect(errors.Is(err, domain.ErrProviderUnavailable)).To(BeTrue())
			Expect(rep.Err).To(HaveOccurred())
			Expect(rep.Written).To(Equal(rep.Embedded))
			Expect(rep.Written).To(BeNumerically("<", 3))
			Expect(store.Len()).To(Equal(rep.Written))
		})
	})

	Context("ingesting files", func() {
		var dir string

		BeforeEach(func() {
			dir = GinkgoT().TempDir()
			Expect(os.WriteFile(filepath.Join(dir, "retention.txt"), []byte("Customer records have a retention period of seven years."), 0o644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "visitors.txt"), []byte("Visitors sign the guest book at reception."), 0o644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "empty.txt"), []byte("   \n"), 0o644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "broken.pdf"), []byte("not a pdf"), 0o644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644)).To(Succeed())
		})

		It("reports per-file outcomes", func() {
			rep, err := svc.Ingest(ctx, []string{dir})
			Expect(err).NotTo(HaveOccurred())
			Expect(rep.Files).To(HaveLen(4))
			Expect(rep.Succeeded()).To(Equal(2))
			Expect(rep.Written()).To(Equal(2))

			byName := map[string]service.FileReport{}
			for _, f := range rep.Files {
				byName[filepath.Base(f.Path)] = f
			}
			Expect(byName["broken.pdf"].Err).To(HaveOccurred())
			Expect(byName["empty.txt"].Chunks).To(Equal(0))
			Expect(byName["retention.txt"].OK()).To(BeTrue())
		})

		It("answers from the ingested files", func() {
			_, err := svc.Ingest(ctx, []string{filepath.Join(dir, "*.txt")})
			Expect(err).NotTo(HaveOccurred())

			ans, err := svc.Ask(ctx, "retention period of customer records", 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(ans.Contexts).To(HaveLen(1))
			Expect(ans.Contexts[0].Record.SourceFile).To(Equal("retention.txt"))
			Expect(ans.Text).To(ContainSubstring("seven years"))
			Expect(ans.Text).To(ContainSubstring("Sources: retention.txt"))
		})

		It("purges a source file", func() {
			_, err := svc.Ingest(ctx, []string{dir})
			Expect(err).NotTo(HaveOccurred())
			n, err := svc.Purge(ctx, "visitors.txt")
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(1))
			Expect(store.Len()).To(Equal(1))
		})

		It("fails when nothing matches", func() {
			_, err := svc.Ingest(ctx, []string{filepath.Join(dir, "*.md")})
			Expect(err).To(MatchError(service.ErrNoDocuments))
		})
	})

	It("has no context to answer from an empty store", func() {
		_, err := svc.Ask(ctx, "anything at all", 3)
		Expect(err).To(MatchError(service.ErrNoContext))
	})
})

package answer

import (
	"context"
	"strings"
	"testing"

	"pdfrag/internal/domain"
)

func ctx(source, content string) domain.ScoredResult {
	return domain.ScoredResult{Record: domain.EmbeddingRecord{SourceFile: source, Content: content}}
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("What is the retention period?", []domain.ScoredResult{
		ctx("a.pdf", "first"),
		ctx("b.pdf", "second"),
	})
	want := "Source: a.pdf\nContent: first\n\nSource: b.pdf\nContent: second"
	if !strings.Contains(p, want) {
		t.Fatalf("context blocks missing from prompt:\n%s", p)
	}
	if !strings.Contains(p, "Question: What is the retention period?") {
		t.Fatal("question missing")
	}
	if !strings.HasPrefix(p, "You are a knowledgeable financial compliance expert.") {
		t.Fatal("unexpected preamble")
	}
}

func TestExtractivePrefersQueryTerms(t *testing.T) {
	e := NewExtractive(1)
	got, err := e.Compose(context.Background(), "retention period for customer records", []domain.ScoredResult{
		ctx("policy.pdf", "The office opens at nine. Customer records have a retention period of seven years. Parking is free."),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(got, "Customer records have a retention period of seven years.") {
		t.Fatalf("answer = %q", got)
	}
	if !strings.HasSuffix(got, "Sources: policy.pdf") {
		t.Fatalf("sources missing: %q", got)
	}
}

func TestExtractiveKeepsContextOrder(t *testing.T) {
	e := NewExtractive(2)
	got, _ := e.Compose(context.Background(), "encryption keys", []domain.ScoredResult{
		ctx("a.pdf", "Encryption keys rotate yearly."),
		ctx("b.pdf", "Lunch is at noon."),
		ctx("c.pdf", "Keys for encryption live in the vault."),
	})
	first := strings.Index(got, "Encryption keys rotate yearly.")
	second := strings.Index(got, "Keys for encryption live in the vault.")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("answer = %q", got)
	}
	if strings.Contains(got, "Lunch") {
		t.Fatalf("irrelevant sentence selected: %q", got)
	}
	if !strings.HasSuffix(got, "Sources: a.pdf, c.pdf") {
		t.Fatalf("sources = %q", got)
	}
}

func TestExtractiveEmptyContext(t *testing.T) {
	got, err := NewExtractive(3).Compose(context.Background(), "anything", nil)
	if err != nil || got != "" {
		t.Fatalf("got %q, %v", got, err)
	}
}

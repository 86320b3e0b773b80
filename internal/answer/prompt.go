package answer

import (
	"context"
	"fmt"
	"strings"

	"pdfrag/internal/domain"
)

// Composer writes an answer to query from retrieved context.
type Composer interface {
	Name() string
	Compose(ctx context.Context, query string, contexts []domain.ScoredResult) (string, error)
}

const promptTemplate = `You are a knowledgeable financial compliance expert. Based on the provided context from regulatory documents, provide a comprehensive and detailed answer to the user's question.

Include specific requirements, procedures, and any relevant guidelines mentioned in the context. Structure your response with clear explanations and cite the relevant source documents when applicable.

Context:
%s

Question: %s

Please provide a detailed answer that thoroughly addresses the question using the information from the context above:`

// BuildPrompt renders the generation prompt with one Source/Content block
// per context, in retrieval order.
func BuildPrompt(query string, contexts []domain.ScoredResult) string {
	blocks := make([]string, len(contexts))
	for i, c := range contexts {
		blocks[i] = fmt.Sprintf("Source: %s\nContent: %s", c.Record.SourceFile, c.Record.Content)
	}
	return fmt.Sprintf(promptTemplate, strings.Join(blocks, "\n\n"), query)
}

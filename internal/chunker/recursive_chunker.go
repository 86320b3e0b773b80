package chunker

import (
	"strings"
	"unicode/utf8"

	"pdfrag/internal/domain"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
)

// DefaultSeparators are tried coarsest first: paragraph, line, word, rune.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// RecursiveChunker splits text by a priority list of separators into pieces of
// at most chunkSize runes. Every piece after the first on a page is prefixed
// with the trailing overlap runes of the previous piece.
type RecursiveChunker struct {
	chunkSize  int
	overlap    int
	separators []string
}

func NewRecursiveChunker(chunkSize, overlap int) *RecursiveChunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 10
	}
	return &RecursiveChunker{
		chunkSize:  chunkSize,
		overlap:    overlap,
		separators: DefaultSeparators,
	}
}

// Split chunks every page of a source in order. Index keeps counting across
// pages; overlap never crosses a page boundary.
func (c *RecursiveChunker) Split(pages []domain.Page, sourceID string) []domain.Chunk {
	var chunks []domain.Chunk
	idx := 0
	for i, p := range pages {
		if strings.TrimSpace(p.Text) == "" {
			continue
		}
		number := p.Number
		if number == 0 {
			number = i + 1
		}
		var prev string
		for j, piece := range c.pieces(p.Text) {
			text, overlap := piece, 0
			if j > 0 && c.overlap > 0 {
				tail := lastRunes(prev, c.overlap)
				text = tail + piece
				overlap = utf8.RuneCountInString(tail)
			}
			chunks = append(chunks, domain.Chunk{
				SourceID: sourceID,
				Index:    idx,
				Page:     number,
				Text:     text,
				Overlap:  overlap,
			})
			prev = piece
			idx++
		}
	}
	return chunks
}

// pieces cuts text into non-overlapping pieces whose concatenation is text.
// The first piece may use the full chunk size; later ones leave room for the
// overlap prefix.
func (c *RecursiveChunker) pieces(text string) []string {
	budget := c.chunkSize - c.overlap
	atoms := c.atoms(text, c.separators, budget)

	var out []string
	var cur strings.Builder
	curLen := 0
	limit := c.chunkSize
	for _, a := range atoms {
		n := utf8.RuneCountInString(a)
		if curLen > 0 && curLen+n > limit {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
			limit = budget
		}
		cur.WriteString(a)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

// atoms splits text with the coarsest separator present and recurses with
// finer separators into parts longer than budget. Separators stay attached to
// the end of the part they follow.
func (c *RecursiveChunker) atoms(text string, separators []string, budget int) []string {
	if utf8.RuneCountInString(text) <= budget {
		return []string{text}
	}
	sep, rest := "", []string(nil)
	for i, s := range separators {
		if s == "" || strings.Contains(text, s) {
			sep, rest = s, separators[i+1:]
			break
		}
	}
	if sep == "" {
		return splitRunes(text, budget)
	}
	var out []string
	for _, part := range strings.SplitAfter(text, sep) {
		if part == "" {
			continue
		}
		if utf8.RuneCountInString(part) <= budget {
			out = append(out, part)
			continue
		}
		out = append(out, c.atoms(part, rest, budget)...)
	}
	return out
}

func splitRunes(text string, size int) []string {
	runes := []rune(text)
	out := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

func lastRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

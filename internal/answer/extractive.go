package answer

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"

	"pdfrag/internal/domain"
)

// Extractive answers without a language model: it picks the context
// sentences that best match the query, weighting terms by how often they
// occur across the retrieved context.
type Extractive struct {
	maxSentences  int
	tokenPattern  *regexp.Regexp
	sentenceSplit *regexp.Regexp
	stopwords     map[string]struct{}
}

// NewExtractive creates an extractive composer returning at most maxSentences sentences.
func NewExtractive(maxSentences int) *Extractive {
	if maxSentences <= 0 {
		maxSentences = 5
	}
	return &Extractive{
		maxSentences:  maxSentences,
		tokenPattern:  regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		sentenceSplit: regexp.MustCompile(`[^.!?\n]+[.!?]?`),
		stopwords:     defaultStopwords(),
	}
}

func (e *Extractive) Name() string { return "extractive" }

type sentence struct {
	text   string
	source string
	order  int
	score  float64
}

// Compose returns the selected sentences in context order followed by the
// list of sources they came from.
func (e *Extractive) Compose(ctx context.Context, query string, contexts []domain.ScoredResult) (string, error) {
	var sentences []sentence
	for _, c := range contexts {
		for _, s := range e.sentenceSplit.FindAllString(c.Record.Content, -1) {
			s = strings.TrimSpace(s)
			if len(e.tokens(s)) == 0 {
				continue
			}
			sentences = append(sentences, sentence{text: s, source: c.Record.SourceFile, order: len(sentences)})
		}
	}
	if len(sentences) == 0 {
		return "", nil
	}

	// Term frequency across the whole context, normalized to [0, 1].
	freq := map[string]float64{}
	for _, s := range sentences {
		for _, tok := range e.tokens(s.text) {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		maxF = math.Max(maxF, v)
	}
	for k, v := range freq {
		freq[k] = v / maxF
	}

	queryTerms := map[string]struct{}{}
	for _, tok := range e.tokens(query) {
		queryTerms[tok] = struct{}{}
	}
	for i := range sentences {
		toks := e.tokens(sentences[i].text)
		score := 0.0
		for _, tok := range toks {
			w := freq[tok]
			if _, ok := queryTerms[tok]; ok {
				w += 1
			}
			score += w
		}
		sentences[i].score = score / math.Sqrt(float64(len(toks)))
	}

	ranked := append([]sentence(nil), sentences...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	ranked = ranked[:min(e.maxSentences, len(ranked))]
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].order < ranked[j].order })

	var (
		out     []string
		sources []string
		seen    = map[string]struct{}{}
	)
	for _, s := range ranked {
		out = append(out, s.text)
		if _, ok := seen[s.source]; !ok && s.source != "" {
			seen[s.source] = struct{}{}
			sources = append(sources, s.source)
		}
	}
	answer := strings.Join(out, " ")
	if len(sources) > 0 {
		answer += "\n\nSources: " + strings.Join(sources, ", ")
	}
	return answer, nil
}

func (e *Extractive) tokens(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, stop := e.stopwords[t]; !stop {
			out = append(out, t)
		}
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
		"what", "which", "who", "how", "when", "where", "why", "do", "does", "must", "we", "our",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfrag/internal/domain"
	"pdfrag/internal/service"
)

// Port is the TUI-facing subset of the service.
type Port interface {
	Search(ctx context.Context, query string, limit int) ([]domain.ScoredResult, error)
	Ask(ctx context.Context, query string, limit int) (service.Answer, error)
}

// Model is the Bubble Tea model for the query browser.
type Model struct {
	ctx       context.Context
	service   Port
	limit     int
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.ScoredResult
	answer    string
	subtitle  string
	status    string
	cursor    int
	ready     bool
	busy      bool
	lastQuery string
}

// New creates a new TUI model. subtitle is shown under the header.
func New(ctx context.Context, svc Port, limit int, subtitle string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Enter searches, Ctrl+A asks for an answer"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		service:  svc,
		limit:    limit,
		input:    ti,
		viewport: viewport.New(0, 0),
		subtitle: subtitle,
		status:   "Ready. Type a question.",
	}
}

type searchMsg struct {
	query   string
	results []domain.ScoredResult
	err     error
}

type answerMsg struct {
	query  string
	answer service.Answer
	err    error
}

func (m Model) search(q string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.Search(m.ctx, q, m.limit)
		return searchMsg{query: q, results: res, err: err}
	}
}

func (m Model) ask(q string) tea.Cmd {
	return func() tea.Msg {
		ans, err := m.service.Ask(m.ctx, q, m.limit)
		return answerMsg{query: q, answer: ans, err: err}
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and result events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header and subtitle, status, query box, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-rh)
		m.viewport.SetContent(m.render())
		return m, nil

	case searchMsg:
		m.busy = false
		m.answer = ""
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		} else {
			m.status = fmt.Sprintf("%d results for %q", len(msg.results), msg.query)
			m.results = msg.results
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.render())
		return m, nil

	case answerMsg:
		m.busy = false
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
			m.answer = ""
		default:
			m.status = fmt.Sprintf("Answer to %q from %d sources", msg.query, len(msg.answer.Contexts))
			m.answer = msg.answer.Text
			m.results = msg.answer.Contexts
			m.cursor = 0
			m.lastQuery = msg.query
		}
		m.viewport.SetContent(m.render())
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		q := strings.TrimSpace(m.input.Value())
		switch msg.String() {
		case "enter":
			if q != "" && !m.busy {
				m.busy = true
				m.status = "Searching..."
				return m, m.search(q)
			}
		case "ctrl+a":
			if q != "" && !m.busy {
				m.busy = true
				m.status = "Composing answer..."
				return m, m.ask(q)
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.render())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the layout and the current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("pdfrag")
	subtitle := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.subtitle)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + subtitle + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) render() string {
	var b strings.Builder
	if m.answer != "" {
		b.WriteString(answerStyle.Render(m.answer))
		b.WriteString("\n\n")
	}
	if len(m.results) == 0 {
		b.WriteString("No results yet.")
		return b.String()
	}
	r := m.results[m.cursor]
	fmt.Fprintf(&b, "Result %d/%d  %s", m.cursor+1, len(m.results), r.Record.SourceFile)
	if page, ok := r.Record.Metadata["page"]; ok {
		fmt.Fprintf(&b, " p.%v", page)
	}
	fmt.Fprintf(&b, "  similarity=%.3f  tier=%s\n\n", r.Similarity, r.Tier)
	b.WriteString(highlightBestSentence(r.Record.Content, m.lastQuery))
	return b.String()
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	answerStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	wordRe         = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)
	sentenceRe     = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

// highlightBestSentence emphasizes the sentence sharing most words with query.
func highlightBestSentence(text, query string) string {
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return text
	}
	qTokens := tokenSet(query)
	best, bestScore := -1, 0
	for i, s := range sentences {
		if score := overlap(qTokens, s); score > bestScore {
			best, bestScore = i, score
		}
	}
	for i := range sentences {
		sentences[i] = strings.TrimSpace(sentences[i])
		if i == best {
			sentences[i] = highlightStyle.Render(sentences[i])
		}
	}
	return strings.Join(sentences, " ")
}

func tokenSet(s string) map[string]struct{} {
	tokens := wordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func overlap(query map[string]struct{}, sentence string) int {
	score := 0
	for t := range tokenSet(sentence) {
		if _, ok := query[t]; ok {
			score++
		}
	}
	return score
}

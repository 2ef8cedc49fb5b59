package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"cysearch/internal/domain"
)

// SampleQueries are offered when the query box is empty.
var SampleQueries = []string{
	"machine learning but for engineering students",
	"statistics classes that are practical and less theory",
	"CS classes that teaches algorithms",
}

// SearchPort is the TUI-facing subset of the search service.
type SearchPort interface {
	Search(ctx context.Context, query string, n int) ([]domain.RankedResult, error)
}

type resultsMsg struct {
	query   string
	results []domain.RankedResult
	err     error
}

// ReloadedMsg tells the model the course catalog was swapped.
type ReloadedMsg struct {
	Records int
	Err     error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx       context.Context
	service   SearchPort
	n         int
	input     textinput.Model
	viewport  viewport.Model
	results   []domain.RankedResult
	summary   string
	status    string
	cursor    int
	sample    int
	ready     bool
	searching bool
	lastQuery string
}

// New creates a new TUI model instance. n is the number of courses shown
// per query.
func New(ctx context.Context, service SearchPort, n int, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = SampleQueries[0]
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ctx:      ctx,
		service:  service,
		n:        n,
		input:    ti,
		viewport: vp,
		summary:  summary,
		status:   "Type what you want to learn and press Enter. Tab cycles sample queries.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) search(q string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.service.Search(m.ctx, q, m.n)
		return resultsMsg{query: q, results: res, err: err}
	}
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		// account for frames around result and query boxes
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		totalHeaderLines := 2                                    // header + summary
		totalFooterLines := 1                                    // status
		reserved := totalHeaderLines + totalFooterLines + qh + 1 // 1 spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case resultsMsg:
		m.searching = false
		switch {
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
			m.results = nil
		case len(msg.results) == 0:
			m.status = "No results found."
			m.results = nil
		default:
			m.status = fmt.Sprintf("%d courses for %q", len(msg.results), msg.query)
			m.results = msg.results
		}
		m.cursor = 0
		m.lastQuery = msg.query
		m.viewport.SetContent(m.renderCurrentResult())
		return m, nil
	case ReloadedMsg:
		if msg.Err != nil {
			m.status = "Reload failed, keeping current catalog: " + msg.Err.Error()
		} else {
			m.status = fmt.Sprintf("Catalog reloaded: %d courses.", msg.Records)
		}
		return m, nil
	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.searching {
				m.searching = true
				m.status = "Searching..."
				return m, m.search(q)
			}
		case "tab":
			if strings.TrimSpace(m.input.Value()) == "" || m.isSample(m.input.Value()) {
				m.input.SetValue(SampleQueries[m.sample])
				m.input.CursorEnd()
				m.sample = (m.sample + 1) % len(SampleQueries)
				return m, nil
			}
		case "down":
			if len(m.results) > 0 {
				m.cursor = (m.cursor + 1) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		case "up":
			if len(m.results) > 0 {
				m.cursor = (m.cursor - 1 + len(m.results)) % len(m.results)
				m.viewport.SetContent(m.renderCurrentResult())
				return m, nil
			}
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) isSample(q string) bool {
	for _, s := range SampleQueries {
		if q == s {
			return true
		}
	}
	return false
}

// View renders the TUI layout and current result.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("Course Search")
	summary := lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Render(m.summary)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + summary + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderCurrentResult() string {
	if len(m.results) == 0 {
		if m.lastQuery != "" {
			return "No results found."
		}
		return "No results yet."
	}
	r := m.results[m.cursor]
	title := fmt.Sprintf("Result %d/%d  score=%.3f", m.cursor+1, len(m.results), r.Score)
	return title + "\n\n" + RenderCard(r.Record, m.lastQuery)
}

// RenderCard formats one course the way the catalog lists it.
func RenderCard(rec domain.Record, query string) string {
	var b strings.Builder
	b.WriteString(cardTitleStyle.Render(fmt.Sprintf("%s: %s", rec.Code, rec.Title)))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Credits: %s | Offered in %s\n", orDash(rec.Credits), orDash(rec.Semester))
	fmt.Fprintf(&b, "Prerequisites: %s\n\n", orDash(rec.Prereq))
	b.WriteString(highlightBestSentence(rec.Info, query))
	if rec.Link != "" {
		b.WriteString("\n\n")
		b.WriteString(linkStyle.Render(rec.Link))
	}
	return b.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

var (
	resultBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	highlightStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	cardTitleStyle = lipgloss.NewStyle().Bold(true)
	linkStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Underline(true)
	unicodeWordRe  = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

var abbreviations = map[string]struct{}{
	"e.g.": {}, "i.e.": {}, "etc.": {}, "vs.": {}, "approx.": {}, "dept.": {},
	"dr.": {}, "prof.": {}, "no.": {}, "cr.": {}, "hr.": {}, "hrs.": {}, "jr.": {}, "sr.": {},
}

// splitSentences splits text after ., ! or ? followed by space, except after
// abbreviations and initials. Text after the last terminator is kept as a
// final sentence.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && c != '!' && c != '?' {
			continue
		}
		if i+1 < len(text) && text[i+1] != ' ' && text[i+1] != '\n' && text[i+1] != '\t' {
			continue
		}
		if c == '.' && isAbbreviation(text[start:i+1]) {
			continue
		}
		if s := strings.TrimSpace(text[start : i+1]); s != "" {
			out = append(out, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		out = append(out, s)
	}
	return out
}

func isAbbreviation(sentence string) bool {
	word := sentence
	if i := strings.LastIndexAny(sentence, " \n\t("); i >= 0 {
		word = sentence[i+1:]
	}
	if _, ok := abbreviations[strings.ToLower(word)]; ok {
		return true
	}
	body := strings.TrimSuffix(word, ".")
	// initials such as "U.S." or "A."
	return strings.Contains(body, ".") || utf8.RuneCountInString(body) == 1
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := splitSentences(text)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	if bestScore > 0 {
		sentences[bestIdx] = highlightStyle.Render(sentences[bestIdx])
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}

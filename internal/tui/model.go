package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hyqhyq3/wmtr/internal/i18n"
	"github.com/hyqhyq3/wmtr/internal/mtr"
	"github.com/hyqhyq3/wmtr/internal/report"
)

const (
	nameWidth       = 28
	minRefreshEvery = 100 * time.Millisecond
)

type tickMsg time.Time

type row struct {
	ttl   int
	name  string
	cells []string
	loss  float32
}

type model struct {
	sess   *mtr.Session
	fields []report.Field
	every  time.Duration

	rows   []row
	width  int
	paused bool
	done   bool

	styles styles
}

type styles struct {
	title  lipgloss.Style
	header lipgloss.Style
	muted  lipgloss.Style
	lossy  lipgloss.Style
}

func newModel(sess *mtr.Session, fields []report.Field, every time.Duration) *model {
	if every < minRefreshEvery {
		every = minRefreshEvery
	}
	m := &model{
		sess:   sess,
		fields: fields,
		every:  every,
		styles: styles{
			title:  lipgloss.NewStyle().Bold(true),
			header: lipgloss.NewStyle().Bold(true),
			muted:  lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
			lossy:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		},
	}
	m.refresh()
	return m
}

func (m *model) Init() tea.Cmd {
	return m.tick()
}

func (m *model) tick() tea.Cmd {
	return tea.Tick(m.every, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "p":
			m.paused = !m.paused
			return m, nil
		case "q", "esc", "ctrl+c":
			m.sess.StopTrace()
			return m, tea.Quit
		}
	case tickMsg:
		if !m.sess.IsTracing() {
			m.done = true
			m.refresh()
			return m, tea.Quit
		}
		if !m.paused {
			m.refresh()
		}
		return m, m.tick()
	}
	return m, nil
}

// refresh copies the visible part of the hop table through the locking
// getters.
func (m *model) refresh() {
	n := m.sess.Max()
	rows := make([]row, 0, n)
	for at := 0; at < n; at++ {
		r := row{
			ttl:   at + 1,
			name:  m.sess.Name(at),
			cells: make([]string, len(m.fields)),
			loss:  m.sess.Percent(at),
		}
		for i, f := range m.fields {
			r.cells[i] = f.Cell(m.sess, at, report.Safe)
		}
		rows = append(rows, r)
	}
	m.rows = rows
}

func (m *model) View() string {
	cfg := m.sess.Config()
	status := []string{fmt.Sprintf("%s: %s", i18n.T("tui.target"), m.sess.Target())}
	if cfg.Cycles == 0 {
		status = append(status, i18n.T("tui.cyclesUnlimited"))
	} else {
		status = append(status, i18n.Tf("tui.cycles", map[string]interface{}{"Count": cfg.Cycles}))
	}
	switch {
	case m.done:
		status = append(status, i18n.T("tui.finished"))
	case m.paused:
		status = append(status, i18n.T("tui.paused"))
	}

	var b strings.Builder
	b.WriteString(m.styles.title.Render("wmtr"))
	b.WriteString("  ")
	b.WriteString(strings.Join(status, "  "))
	b.WriteString("\n\n")

	var hdr strings.Builder
	fmt.Fprintf(&hdr, "%-*s", nameWidth+6, i18n.T("tui.host"))
	for _, f := range m.fields {
		hdr.WriteString(f.Header())
	}
	b.WriteString(m.styles.header.Render(hdr.String()))
	b.WriteString("\n")

	for _, r := range m.rows {
		line := fmt.Sprintf("%3d. %-*s %s", r.ttl, nameWidth, trunc(r.name, nameWidth), strings.Join(r.cells, ""))
		if m.width > 0 {
			line = trunc(line, m.width)
		}
		if r.loss > 0 {
			line = m.styles.lossy.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.styles.muted.Render(i18n.T("tui.help")))
	b.WriteString("\n")
	return b.String()
}

func trunc(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return string(r[:1])
	}
	return string(r[:n-1]) + "…"
}

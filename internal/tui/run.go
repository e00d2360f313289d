package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hyqhyq3/wmtr/internal/mtr"
	"github.com/hyqhyq3/wmtr/internal/report"
)

// Run shows the live hop table of a session started with DoTrace(..., true)
// and refreshes it every interval. It returns when the trace finishes or the
// user quits, in which case the trace is stopped.
func Run(sess *mtr.Session, fields []report.Field, every time.Duration) error {
	p := tea.NewProgram(newModel(sess, fields, every), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Package watch implements the terminal view that follows one submission
// through the validation pipeline.
package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"

	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

// Theme holds the styles of the watch view. Result styles follow the
// lifecycle of a jobstate.Result: pending, placeholder, clean, findings.
type Theme struct {
	Pending  lipgloss.Style
	Waiting  lipgloss.Style
	Clean    lipgloss.Style
	Findings lipgloss.Style

	Border    lipgloss.Style
	Title     lipgloss.Style
	Dim       lipgloss.Style
	Highlight lipgloss.Style
}

func NewDefaultTheme() Theme {
	purple := lipgloss.Color("#874BFD")
	grey := lipgloss.Color("#888888")

	return Theme{
		Pending:  lipgloss.NewStyle().Foreground(grey),
		Waiting:  lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B")).Italic(true),
		Clean:    lipgloss.NewStyle().Foreground(lipgloss.Color("#98C379")).Bold(true),
		Findings: lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75")).Bold(true),

		Border: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(purple),
		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1),
		Dim:       lipgloss.NewStyle().Foreground(grey),
		Highlight: lipgloss.NewStyle().Foreground(lipgloss.Color("#61AFEF")),
	}
}

// Badge renders the one-line state of a stage result.
func (t Theme) Badge(r jobstate.Result, spin string) string {
	switch {
	case r.IsPending():
		return t.Pending.Render(spin + " pending")
	case r.IsPlaceholder():
		return t.Waiting.Render(r.Text())
	}
	items, _ := r.Items()
	if len(items) == 0 {
		return t.Clean.Render("✓ clean")
	}
	return t.Findings.Render(fmt.Sprintf("✗ %d message(s)", len(items)))
}

// Ticker cycles spinner frames while the submission is in progress.
type Ticker struct {
	frames   []string
	index    int
	lastTick time.Time
}

func NewTicker() Ticker {
	return Ticker{
		frames:   spinner.MiniDot.Frames,
		lastTick: time.Now(),
	}
}

func (t *Ticker) Tick() {
	t.index = (t.index + 1) % len(t.frames)
	t.lastTick = time.Now()
}

func (t Ticker) Current() string {
	return t.frames[t.index]
}

// Since reports how long ago the last tick was.
func (t Ticker) Since(now time.Time) time.Duration {
	return now.Sub(t.lastTick)
}

package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

// maxShown caps how many messages each stage panel lists.
const maxShown = 8

// activity is one line of the transition log.
type activity struct {
	At   time.Time
	Text string
}

// diffActivity describes what changed between two pushed statuses.
func diffActivity(prev, next jobstate.Status) []string {
	var out []string
	for _, s := range []struct {
		name       string
		prev, next jobstate.Result
	}{
		{"xlsx", prev.XLSX, next.XLSX},
		{"md5", prev.MD5, next.MD5},
		{"diff", prev.Diff, next.Diff},
	} {
		if s.prev.String() == s.next.String() && s.prev.IsPending() == s.next.IsPending() {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", s.name, s.next))
	}
	if next.Error != "" && prev.Error != next.Error {
		out = append(out, "staging failed: "+next.Error)
	}
	if next.Complete && !prev.Complete {
		out = append(out, "complete")
	}
	return out
}

func renderStages(st jobstate.Status, spin string, theme Theme, width int) string {
	innerWidth := width - 4
	lines := []string{theme.Title.Render("STAGES")}
	lines = append(lines, renderResult("Spreadsheet (xlsx)", st.XLSX, spin, theme)...)
	lines = append(lines, renderResult("Manifest (md5)", st.MD5, spin, theme)...)
	lines = append(lines, renderResult("Linkage (diff)", st.Diff, spin, theme)...)
	if len(st.NewDataTypes) > 0 {
		lines = append(lines, " New data types: "+theme.Highlight.Render(strings.Join(st.NewDataTypes, ", ")))
	}
	if st.Error != "" {
		lines = append(lines, theme.Findings.Render(" Staging error: "+st.Error))
	}
	return theme.Border.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// renderResult renders a stage header line followed by its messages.
func renderResult(name string, r jobstate.Result, spin string, theme Theme) []string {
	label := fmt.Sprintf(" %-20s ", name)
	lines := []string{label + theme.Badge(r, spin)}
	items, _ := r.Items()
	for i, item := range items {
		if i == maxShown {
			lines = append(lines, theme.Dim.Render(fmt.Sprintf("     … %d more", len(items)-maxShown)))
			break
		}
		lines = append(lines, "     "+item)
	}
	return lines
}

func renderActivity(log []activity, theme Theme, width int) string {
	innerWidth := width - 4
	if len(log) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("ACTIVITY"),
			theme.Dim.Render("  Waiting for updates..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, a := range log {
		if i >= 10 {
			break
		}
		lines = append(lines, fmt.Sprintf("%s %s", theme.Dim.Render(a.At.Format("15:04:05")), a.Text))
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("ACTIVITY"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

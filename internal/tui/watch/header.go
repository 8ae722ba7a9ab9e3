package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

// HealthState tracks server health from /healthz polling.
type HealthState struct {
	Status          string
	UptimeSeconds   int64
	QueueDepth      int
	ImportersLoaded int
	Subscribers     int
	Connected       bool
	LastCheck       time.Time
}

// stagesDone counts the validators that have recorded a final result.
func stagesDone(st jobstate.Status) (done, total int) {
	for _, r := range []jobstate.Result{st.XLSX, st.MD5, st.Diff} {
		total++
		if !r.IsPending() && !r.IsPlaceholder() {
			done++
		}
	}
	return done, total
}

func renderHeader(id string, st jobstate.Status, health HealthState, ticker Ticker, theme Theme, width int) string {
	innerWidth := width - 4

	statusText := theme.Clean.Render("HEALTHY")
	if !health.Connected {
		statusText = theme.Findings.Render("CONNECTING")
	} else if health.Status != "ok" && health.Status != "" {
		statusText = theme.Findings.Render("DEGRADED")
	}

	tickerStr := theme.Highlight.Render(ticker.Current())
	clock := theme.Dim.Render(time.Now().Format("15:04:05"))
	titleText := fmt.Sprintf(" BPAWORKFLOW WATCH %s", tickerStr)

	pad := innerWidth - lipgloss.Width(titleText) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}
	titleLine := titleText + strings.Repeat(" ", pad) + clock + " "

	statsLine := fmt.Sprintf(" %s  ⏱ %s  Queue: %d  Importers: %d  Watchers: %d",
		statusText,
		formatDuration(time.Duration(health.UptimeSeconds)*time.Second),
		health.QueueDepth,
		health.ImportersLoaded,
		health.Subscribers,
	)
	done, total := stagesDone(st)
	idLine := fmt.Sprintf(" Submission: %s  Stages: %d/%d", theme.Highlight.Render(id), done, total)
	if st.Importer != "" {
		idLine += "  Importer: " + st.Importer
	}

	content := lipgloss.JoinVertical(lipgloss.Left, titleLine, statsLine, idLine)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

package watch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bioplatforms/bpaworkflow/internal/client"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	ctx context.Context
	src Source
	id  string

	width  int
	height int

	health    HealthState
	status    jobstate.Status
	hasStatus bool
	activity  []activity

	ticker  Ticker
	spinner spinner.Model
	theme   Theme

	updates chan jobstate.Status

	lastError string
}

// New creates a watch model for submission id.
func New(ctx context.Context, src Source, id string) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return &Model{
		ctx:     ctx,
		src:     src,
		id:      id,
		ticker:  NewTicker(),
		spinner: sp,
		theme:   NewDefaultTheme(),
		updates: make(chan jobstate.Status, 16),
	}
}

// Status returns the last status received.
func (m Model) Status() jobstate.Status { return m.status }

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		streamStatus(m.ctx, m.src, m.id, m.updates),
		receiveNextStatus(m.updates),
		fetchHealth(m.ctx, m.src),
		m.spinner.Tick,
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.ticker.Tick()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		st := jobstate.Status(msg)
		var changes []string
		if m.hasStatus {
			changes = diffActivity(m.status, st)
		} else {
			changes = append([]string{"following submission"}, diffActivity(jobstate.Status{}, st)...)
		}
		now := time.Now()
		for _, c := range changes {
			m.activity = append([]activity{{At: now, Text: c}}, m.activity...)
		}
		if len(m.activity) > 50 {
			m.activity = m.activity[:50]
		}
		m.status = st
		m.hasStatus = true
		m.lastError = ""
		if st.Complete {
			return m, nil
		}
		return m, receiveNextStatus(m.updates)

	case streamEndedMsg:
		if m.status.Complete {
			return m, nil
		}
		if errors.Is(msg.err, client.ErrNotFound) {
			m.lastError = "submission not found"
			return m, nil
		}
		if msg.err != nil {
			m.lastError = fmt.Sprintf("stream disconnected (%v), reconnecting...", msg.err)
		} else {
			m.lastError = "stream closed, reconnecting..."
		}
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, streamStatus(m.ctx, m.src, m.id, m.updates)

	case healthMsg:
		m.health = HealthState{
			Status:          msg.Status,
			UptimeSeconds:   msg.UptimeSeconds,
			QueueDepth:      msg.QueueDepth,
			ImportersLoaded: msg.ImportersLoaded,
			Subscribers:     msg.Subscribers,
			Connected:       true,
			LastCheck:       time.Now(),
		}
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.ctx, m.src)()
		})

	case errMsg:
		m.health.Connected = false
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.ctx, m.src)()
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	parts := []string{
		renderHeader(m.id, m.status, m.health, m.ticker, m.theme, m.width),
		renderStages(m.status, m.spinner.View(), m.theme, m.width),
		renderActivity(m.activity, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Findings.Render(fmt.Sprintf(" ⚠ %s", m.lastError)))
	}
	help := " [q] Quit"
	if m.status.Complete {
		help = " Submission complete • [q] Quit"
	}
	parts = append(parts, lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(help))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}

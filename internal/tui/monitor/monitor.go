// Package monitor implements the terminal dashboard that follows every
// submission the server is processing through its event feed.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bioplatforms/bpaworkflow/internal/api"
	"github.com/bioplatforms/bpaworkflow/internal/events"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))
	statusFailed  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

const maxEvents = 200

// --- Types ---

// Source is the server API the dashboard reads from.
type Source interface {
	Events(ctx context.Context, submissionID string, lastID int64, fn func(events.Event)) error
	Health(ctx context.Context) (api.HealthzResponse, error)
}

// Submission is the dashboard's view of one job, built from its events.
type Submission struct {
	ID        string
	Stage     string
	Status    string
	Error     string
	FirstSeen time.Time
	LastSeen  time.Time
}

type Model struct {
	ctx context.Context
	src Source

	width  int
	height int

	subs      map[string]*Submission
	order     []string
	eventLog  []events.Event
	lastID    int64
	hubEvents chan events.Event

	health    api.HealthzResponse
	connected bool
	lastError string

	jobTable table.Model
	viewport viewport.Model
}

type eventMsg events.Event
type healthMsg api.HealthzResponse
type errMsg error
type streamEndedMsg struct{ err error }
type reconnectMsg struct{}

// --- Init ---

func New(ctx context.Context, src Source) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Submission", Width: 36},
			{Title: "Stage", Width: 10},
			{Title: "Status", Width: 10},
			{Title: "Elapsed", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		ctx:       ctx,
		src:       src,
		subs:      make(map[string]*Submission),
		hubEvents: make(chan events.Event, 100),
		jobTable:  t,
		viewport:  viewport.New(80, 10),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.subscribeToEvents(),
		m.receiveNextEvent(),
		m.pollHealth(),
		tea.EnterAltScreen,
	)
}

// Submissions returns the tracked submissions, most recently active first.
func (m Model) Submissions() []Submission {
	out := make([]Submission, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, *m.subs[id])
	}
	return out
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "pgup", "pgdown":
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.jobTable.SetWidth(m.width - 6)
		m.viewport.Width = m.width - 6
		m.viewport.Height = m.height / 3
		m.viewport.SetContent(m.renderEvents())

	case eventMsg:
		m.handleEvent(events.Event(msg))
		m.updateTable()
		m.viewport.SetContent(m.renderEvents())
		return m, m.receiveNextEvent()

	case streamEndedMsg:
		m.connected = false
		if msg.err != nil {
			m.lastError = msg.err.Error()
		}
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, m.subscribeToEvents()

	case healthMsg:
		m.health = api.HealthzResponse(msg)
		m.connected = true
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return m.fetchHealth()
		})

	case errMsg:
		m.connected = false
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return m.fetchHealth()
		})
	}

	m.jobTable, cmd = m.jobTable.Update(msg)
	return m, cmd
}

func (m *Model) handleEvent(e events.Event) {
	if e.ID <= m.lastID {
		return
	}
	m.lastID = e.ID

	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > maxEvents {
		m.eventLog = m.eventLog[:maxEvents]
	}
	if e.JobID == "" {
		return
	}

	sub, ok := m.subs[e.JobID]
	if !ok {
		sub = &Submission{ID: e.JobID, FirstSeen: e.At, Status: "running"}
		m.subs[e.JobID] = sub
	}
	sub.LastSeen = e.At

	var data struct {
		Stage string `json:"stage"`
		Next  string `json:"next"`
		Error string `json:"error"`
	}
	_ = json.Unmarshal(e.Data, &data)

	switch e.Type {
	case events.TypeStageSucceeded:
		sub.Stage = data.Stage
		if data.Next != "" {
			sub.Stage = data.Next
		}
	case events.TypeStageFailed:
		sub.Stage = data.Stage
		sub.Status = "failed"
		sub.Error = data.Error
	case events.TypeJobCompleted:
		sub.Stage = "complete"
		sub.Status = "complete"
	}

	m.order = m.order[:0]
	for id := range m.subs {
		m.order = append(m.order, id)
	}
	sort.SliceStable(m.order, func(i, j int) bool {
		a, b := m.subs[m.order[i]], m.subs[m.order[j]]
		if !a.LastSeen.Equal(b.LastSeen) {
			return a.LastSeen.After(b.LastSeen)
		}
		return a.ID < b.ID
	})
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.order))
	for _, id := range m.order {
		rows = append(rows, subToRow(m.subs[id]))
	}
	m.jobTable.SetRows(rows)
}

func subToRow(sub *Submission) table.Row {
	statusSym := statusRunning.Render("◉")
	switch sub.Status {
	case "complete":
		statusSym = statusOK.Render("●")
	case "failed":
		statusSym = statusFailed.Render("∅")
	}

	end := sub.LastSeen
	if sub.Status == "running" {
		end = time.Now()
	}
	elapsed := end.Sub(sub.FirstSeen).Round(time.Second).String()

	return table.Row{statusSym, sub.ID, sub.Stage, sub.Status, elapsed}
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	activeJobs := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Submissions"),
			m.jobTable.View(),
		),
	)

	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.viewport.View(),
		),
	)

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [↑/↓] Scroll Submissions • [PgUp/PgDn] Scroll Events")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			activeJobs,
			eventsView,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	switch {
	case !m.connected:
		status = statusFailed.Render("DISCONNECTED")
	case m.health.Status != "ok" && m.health.Status != "":
		status = statusFailed.Render("DEGRADED")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second

	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime.String()),
		fmt.Sprintf("Queue: %d", m.health.QueueDepth),
		fmt.Sprintf("Importers: %d", m.health.ImportersLoaded),
	}

	cell := lipgloss.NewStyle().Width((m.width - 4) / 4)
	line := lipgloss.JoinHorizontal(lipgloss.Top,
		cell.Render(items[0]), cell.Render(items[1]), cell.Render(items[2]), cell.Render(items[3]),
	)
	if m.lastError != "" && !m.connected {
		line = lipgloss.JoinVertical(lipgloss.Left, line, statusFailed.Render(m.lastError))
	}
	return borderStyle.Width(m.width - 4).Render(line)
}

func (m Model) renderEvents() string {
	var lines []string
	for _, e := range m.eventLog {
		ts := e.At.Local().Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-15s | %s | %s", ts, e.Type, shortID(e.JobID), string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// --- Commands ---

func (m Model) subscribeToEvents() tea.Cmd {
	ctx, src, ch, lastID := m.ctx, m.src, m.hubEvents, m.lastID
	return func() tea.Msg {
		err := src.Events(ctx, "", lastID, func(ev events.Event) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		})
		return streamEndedMsg{err: err}
	}
}

func (m Model) receiveNextEvent() tea.Cmd {
	ch := m.hubEvents
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

func (m Model) pollHealth() tea.Cmd {
	return func() tea.Msg {
		return m.fetchHealth()
	}
}

func (m Model) fetchHealth() tea.Msg {
	ctx, cancel := context.WithTimeout(m.ctx, 2*time.Second)
	defer cancel()
	h, err := m.src.Health(ctx)
	if err != nil {
		return errMsg(err)
	}
	return healthMsg(h)
}

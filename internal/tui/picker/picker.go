// Package picker is an interactive list for choosing the importer a
// submission is validated against.
package picker

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bioplatforms/bpaworkflow/internal/api"
)

var (
	titleStyle      = lipgloss.NewStyle().MarginLeft(2)
	paginationStyle = list.DefaultStyles().PaginationStyle.PaddingLeft(4)
	helpStyle       = list.DefaultStyles().HelpStyle.PaddingLeft(4).PaddingBottom(1)
	quitTextStyle   = lipgloss.NewStyle().Margin(1, 0, 2, 4)
)

type item struct {
	name    string
	project string
	title   string
}

func (i item) Title() string       { return i.name }
func (i item) Description() string { return fmt.Sprintf("%s: %s", i.project, i.title) }
func (i item) FilterValue() string { return i.project + " " + i.name + " " + i.title }

// Model lets the user pick one importer.
type Model struct {
	list     list.Model
	choice   string
	quitting bool
}

// New lists the importers of meta in project order.
func New(meta api.MetadataResponse) *Model {
	var items []list.Item
	for _, project := range meta.Projects {
		for _, info := range meta.Importers[project] {
			items = append(items, item{name: info.Name, project: project, title: info.Title})
		}
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "Select an importer (/ to filter, Enter to confirm)"
	l.Styles.Title = titleStyle
	l.Styles.PaginationStyle = paginationStyle
	l.Styles.HelpStyle = helpStyle

	return &Model{list: l}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width, msg.Height)

	case tea.KeyMsg:
		// Keys belong to the filter input while it is open.
		if m.list.FilterState() == list.Filtering {
			break
		}
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			if it, ok := m.list.SelectedItem().(item); ok {
				m.choice = it.name
				return m, tea.Quit
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if m.quitting {
		return quitTextStyle.Render("Cancelled.")
	}
	if m.choice != "" {
		return quitTextStyle.Render(fmt.Sprintf("Importer: %s", m.choice))
	}
	return "\n" + m.list.View()
}

// Choice returns the selected importer, or "" when the picker was cancelled.
func (m Model) Choice() string {
	return m.choice
}

package picker

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioplatforms/bpaworkflow/internal/api"
	"github.com/bioplatforms/bpaworkflow/internal/importer"
)

func metadata() api.MetadataResponse {
	return api.MetadataResponse{
		Projects: []string{"amd", "base"},
		Importers: map[string][]importer.Info{
			"amd":  {{Name: "amd-metagenomics", Project: "amd", Title: "AMD Metagenomics"}},
			"base": {{Name: "amplicon-16s", Project: "base", Title: "BASE Amplicon 16S"}},
		},
	}
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestPickerSelectsImporter(t *testing.T) {
	m := *New(metadata())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 20})
	require.Len(t, m.list.Items(), 2)
	assert.Contains(t, m.View(), "amd-metagenomics")

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, "amplicon-16s", m.Choice())
	assert.Contains(t, m.View(), "Importer: amplicon-16s")
}

func TestPickerCancel(t *testing.T) {
	m := *New(metadata())
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)
	assert.Empty(t, m.Choice())
	assert.Contains(t, m.View(), "Cancelled.")
}

func TestPickerEmpty(t *testing.T) {
	m := *New(api.MetadataResponse{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.Empty(t, m.Choice())
}

func TestItemText(t *testing.T) {
	it := item{name: "amplicon-16s", project: "base", title: "BASE Amplicon 16S"}
	assert.Equal(t, "base: BASE Amplicon 16S", it.Description())
	assert.Contains(t, it.FilterValue(), "amplicon-16s")
}

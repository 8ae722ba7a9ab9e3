package watch

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioplatforms/bpaworkflow/internal/api"
	"github.com/bioplatforms/bpaworkflow/internal/client"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

type fakeSource struct {
	statuses  []jobstate.Status
	streamErr error
}

func (f *fakeSource) Stream(ctx context.Context, id string, fn func(jobstate.Status)) error {
	for _, st := range f.statuses {
		fn(st)
	}
	return f.streamErr
}

func (f *fakeSource) Health(ctx context.Context) (api.HealthzResponse, error) {
	return api.HealthzResponse{Status: "ok", QueueDepth: 2, ImportersLoaded: 4}, nil
}

func update(t *testing.T, m tea.Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	model, ok := next.(Model)
	require.True(t, ok)
	return model, cmd
}

func TestModelFollowsSubmissionToCompletion(t *testing.T) {
	m := *New(context.Background(), &fakeSource{}, "job-1")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m, cmd := update(t, m, statusMsg(jobstate.Status{ID: "job-1"}))
	assert.NotNil(t, cmd, "keeps listening while incomplete")
	assert.Contains(t, m.View(), "pending")

	m, _ = update(t, m, statusMsg(jobstate.Status{
		ID:   "job-1",
		XLSX: jobstate.List(nil),
		MD5:  jobstate.List([]string{"File does not meet convention: `bad.fastq.gz'"}),
		Diff: jobstate.Placeholder("no import result until md5 and xlsx are both clean"),
	}))
	view := m.View()
	assert.Contains(t, view, "clean")
	assert.Contains(t, view, "1 message(s)")
	assert.Contains(t, view, "bad.fastq.gz")

	m, cmd = update(t, m, statusMsg(jobstate.Status{
		ID:       "job-1",
		Complete: true,
		XLSX:     jobstate.List(nil),
		MD5:      jobstate.List([]string{"File does not meet convention: `bad.fastq.gz'"}),
		Diff:     jobstate.Placeholder("no import result until md5 and xlsx are both clean"),
	}))
	assert.Nil(t, cmd, "stops listening once complete")
	assert.True(t, m.Status().Complete)
	assert.Contains(t, m.View(), "Submission complete")

	var texts []string
	for _, a := range m.activity {
		texts = append(texts, a.Text)
	}
	assert.Equal(t, []string{
		"complete",
		"diff: no import result until md5 and xlsx are both clean",
		"md5: 1 message(s)",
		"xlsx: 0 message(s)",
		"following submission",
	}, texts)

	// A late stream end after completion is ignored.
	m, cmd = update(t, m, streamEndedMsg{})
	assert.Nil(t, cmd)
	assert.Empty(t, m.lastError)
}

func TestModelStreamEnded(t *testing.T) {
	m := *New(context.Background(), &fakeSource{}, "job-1")

	m, cmd := update(t, m, streamEndedMsg{err: client.ErrNotFound})
	assert.Nil(t, cmd)
	assert.Equal(t, "submission not found", m.lastError)

	m, cmd = update(t, m, streamEndedMsg{err: fmt.Errorf("connection reset")})
	assert.NotNil(t, cmd, "schedules a reconnect")
	assert.Contains(t, m.lastError, "reconnecting")
}

func TestModelHealth(t *testing.T) {
	src := &fakeSource{}
	m := *New(context.Background(), src, "job-1")
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	msg := fetchHealth(context.Background(), src)()
	m, cmd := update(t, m, msg)
	assert.NotNil(t, cmd)
	assert.True(t, m.health.Connected)
	assert.Equal(t, 4, m.health.ImportersLoaded)
	assert.Contains(t, m.View(), "Importers: 4")
}

func TestStreamStatusFeedsChannel(t *testing.T) {
	src := &fakeSource{statuses: []jobstate.Status{{ID: "job-1"}, {ID: "job-1", Complete: true}}}
	ch := make(chan jobstate.Status, 4)

	msg := streamStatus(context.Background(), src, "job-1", ch)()

	assert.Equal(t, streamEndedMsg{}, msg)
	require.Len(t, ch, 2)
	assert.False(t, (<-ch).Complete)
	assert.True(t, (<-ch).Complete)
}

func TestRenderResultTruncates(t *testing.T) {
	items := make([]string, maxShown+3)
	for i := range items {
		items[i] = fmt.Sprintf("problem %d", i)
	}
	lines := renderResult("Spreadsheet (xlsx)", jobstate.List(items), "", NewDefaultTheme())

	require.Len(t, lines, maxShown+2)
	assert.Contains(t, lines[len(lines)-1], "3 more")
	assert.NotContains(t, strings.Join(lines, "\n"), fmt.Sprintf("problem %d", maxShown))
}

func TestDiffActivityStagingError(t *testing.T) {
	changes := diffActivity(jobstate.Status{}, jobstate.Status{Error: "disk full"})
	assert.Equal(t, []string{"staging failed: disk full"}, changes)
}

func TestThemeBadge(t *testing.T) {
	theme := NewDefaultTheme()
	assert.Contains(t, theme.Badge(jobstate.Result{}, "*"), "* pending")
	assert.Contains(t, theme.Badge(jobstate.Placeholder("please wait..."), "*"), "please wait...")
	assert.Contains(t, theme.Badge(jobstate.List(nil), "*"), "clean")
	assert.Contains(t, theme.Badge(jobstate.List([]string{"a", "b"}), "*"), "2 message(s)")
}

func TestTickerCycles(t *testing.T) {
	tk := NewTicker()
	first := tk.Current()
	seen := map[string]bool{first: true}
	for i := 0; i < 3; i++ {
		tk.Tick()
		seen[tk.Current()] = true
	}
	assert.Greater(t, len(seen), 1)
	assert.GreaterOrEqual(t, tk.Since(time.Now().Add(time.Second)), time.Duration(0))
}

func TestStagesDone(t *testing.T) {
	done, total := stagesDone(jobstate.Status{
		XLSX: jobstate.List(nil),
		MD5:  jobstate.Placeholder("please wait..."),
	})
	assert.Equal(t, 1, done)
	assert.Equal(t, 3, total)

	header := renderHeader("job-1", jobstate.Status{Importer: "amd-metagenomics"}, HealthState{Connected: true, Status: "ok"}, NewTicker(), NewDefaultTheme(), 120)
	assert.Contains(t, header, "Stages: 0/3")
	assert.Contains(t, header, "amd-metagenomics")
	assert.Contains(t, header, "HEALTHY")
}

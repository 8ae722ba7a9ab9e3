package client

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioplatforms/bpaworkflow/internal/api"
	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/log"
	"github.com/bioplatforms/bpaworkflow/internal/pipeline"
	"github.com/bioplatforms/bpaworkflow/internal/staging"
)

func TestMain(m *testing.M) {
	log.Setup("error", "json")
	os.Exit(m.Run())
}

type stubJobs struct {
	mu       sync.Mutex
	subs     []pipeline.Submission
	statuses map[string]jobstate.Status
}

func (s *stubJobs) Submit(ctx context.Context, sub pipeline.Submission) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.Importer != "amplicon-16s" {
		return "", fmt.Errorf("%w: %w", staging.ErrForbidden, importer.ErrUnknownImporter)
	}
	s.subs = append(s.subs, sub)
	id := fmt.Sprintf("job-%d", len(s.subs))
	s.statuses[id] = jobstate.Status{ID: id, Importer: sub.Importer}
	return id, nil
}

func (s *stubJobs) Status(ctx context.Context, id string) (jobstate.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[id]
	if !ok {
		return st, jobstate.ErrJobNotFound
	}
	return st, nil
}

func (s *stubJobs) finish(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.statuses[id]
	st.Complete = true
	st.XLSX = jobstate.List(nil)
	st.MD5 = jobstate.List(nil)
	st.Diff = jobstate.List(nil)
	s.statuses[id] = st
}

type stubImporters []importer.Info

func (s stubImporters) Infos() []importer.Info { return s }

type stubDepth struct{}

func (stubDepth) Depth(ctx context.Context) (int, error) { return 0, nil }

func newTestClient(t *testing.T) (*Client, *stubJobs, *events.Hub) {
	t.Helper()
	jobs := &stubJobs{statuses: map[string]jobstate.Status{}}
	hub := events.NewHub(16)
	infos := stubImporters{{Name: "amplicon-16s", Project: "base", Title: "16S"}}
	srv := httptest.NewServer(api.New(api.Config{}, jobs, infos, stubDepth{}, hub).Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL + "/"), jobs, hub
}

func writeUploads(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	xlsx := filepath.Join(dir, "samples.xlsx")
	md5 := filepath.Join(dir, "samples.md5")
	require.NoError(t, os.WriteFile(xlsx, []byte("sheet"), 0o644))
	require.NoError(t, os.WriteFile(md5, []byte("sums"), 0o644))
	return xlsx, md5
}

func TestSubmitAndStatus(t *testing.T) {
	c, jobs, _ := newTestClient(t)
	xlsx, md5 := writeUploads(t)
	ctx := context.Background()

	id, err := c.Submit(ctx, "amplicon-16s", xlsx, md5)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.Len(t, jobs.subs, 1)
	assert.Equal(t, "samples.xlsx", jobs.subs[0].XLSX.Name)
	assert.Equal(t, []byte("sums"), jobs.subs[0].MD5.Data)

	st, err := c.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, st.ID)
	assert.False(t, st.Complete)
}

func TestSubmitRejected(t *testing.T) {
	c, _, _ := newTestClient(t)
	xlsx, md5 := writeUploads(t)

	_, err := c.Submit(context.Background(), "nope", xlsx, md5)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr), "got %v", err)
	assert.Equal(t, 403, apiErr.StatusCode)
	assert.Contains(t, apiErr.Message, "unknown importer")
}

func TestSubmitMissingFile(t *testing.T) {
	c, _, _ := newTestClient(t)
	_, err := c.Submit(context.Background(), "amplicon-16s", "/does/not/exist.xlsx", "/does/not/exist.md5")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStatusNotFound(t *testing.T) {
	c, _, _ := newTestClient(t)
	_, err := c.Status(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMetadataAndHealth(t *testing.T) {
	c, _, _ := newTestClient(t)
	ctx := context.Background()

	md, err := c.Metadata(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"base"}, md.Projects)
	assert.Equal(t, "amplicon-16s", md.Importers["base"][0].Name)

	h, err := c.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.ImportersLoaded)
}

func TestStreamUntilComplete(t *testing.T) {
	c, jobs, hub := newTestClient(t)
	xlsx, md5 := writeUploads(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := c.Submit(ctx, "amplicon-16s", xlsx, md5)
	require.NoError(t, err)

	var seen []jobstate.Status
	err = c.Stream(ctx, id, func(st jobstate.Status) {
		seen = append(seen, st)
		if !st.Complete {
			jobs.finish(id)
			hub.Publish(events.TypeJobCompleted, id, nil)
		}
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.False(t, seen[0].Complete)
	assert.True(t, seen[1].Complete)
	assert.True(t, seen[1].Diff.Clean())
}

func TestStreamNotFound(t *testing.T) {
	c, _, _ := newTestClient(t)
	err := c.Stream(context.Background(), "missing", func(jobstate.Status) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWait(t *testing.T) {
	c, jobs, _ := newTestClient(t)
	xlsx, md5 := writeUploads(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	id, err := c.Submit(ctx, "amplicon-16s", xlsx, md5)
	require.NoError(t, err)
	time.AfterFunc(50*time.Millisecond, func() { jobs.finish(id) })

	st, err := c.Wait(ctx, id, 10*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, st.Complete)
}

func TestEventsReplaysAndFilters(t *testing.T) {
	c, _, hub := newTestClient(t)
	hub.Publish(events.TypeStageSucceeded, "job-1", map[string]string{"stage": "setup"})
	hub.Publish(events.TypeStageSucceeded, "job-2", map[string]string{"stage": "setup"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var got []events.Event
	err := c.Events(ctx, "job-1", 0, func(ev events.Event) {
		got = append(got, ev)
		if ev.Type == events.TypeJobCompleted {
			cancel()
			return
		}
		hub.Publish(events.TypeJobCompleted, "job-2", nil)
		hub.Publish(events.TypeJobCompleted, "job-1", nil)
	})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, got, 2)
	assert.Equal(t, events.TypeStageSucceeded, got[0].Type)
	assert.JSONEq(t, `{"stage":"setup"}`, string(got[0].Data))
	assert.Equal(t, "job-1", got[1].JobID)
	assert.Equal(t, events.TypeJobCompleted, got[1].Type)
}

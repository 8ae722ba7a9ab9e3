package jobstate

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioplatforms/bpaworkflow/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func createJob(t *testing.T, s *Store) *Job {
	t.Helper()
	job, err := s.Create(context.Background(), NewJob{
		Importer:    "amd-metagenomics",
		XLSXName:    "sample.xlsx",
		XLSXData:    []byte("xlsx-bytes"),
		MD5Name:     "sample.md5",
		MD5Data:     []byte("md5-bytes"),
		Fingerprint: "abc",
	})
	require.NoError(t, err)
	return job
}

func TestStoreCreateAndGet(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	created := createJob(t, s)
	require.NotEmpty(t, created.ID)

	got, err := s.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "amd-metagenomics", got.Importer)
	assert.Equal(t, []byte("xlsx-bytes"), got.XLSXData)
	assert.Equal(t, []byte("md5-bytes"), got.MD5Data)
	assert.False(t, got.State.Complete)
	assert.True(t, got.State.XLSX.IsPending())
	assert.True(t, got.State.MD5.IsPending())
	assert.True(t, got.State.Diff.IsPending())
	assert.False(t, got.SubmittedAt.IsZero())
}

func TestStoreCreateAssignsUniqueIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	a := createJob(t, s)
	b := createJob(t, s)
	assert.NotEqual(t, a.ID, b.ID)

	n, err := s.CountByFingerprint(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStoreGetMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)

	err = s.MarkComplete(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestStoreSettersWriteDisjointKeys(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	job := createJob(t, s)

	require.NoError(t, s.SetStaged(ctx, job.ID, Staged{
		Dir:   "/tmp/bpaworkflow-x",
		Paths: map[string]string{"xlsx": "/tmp/bpaworkflow-x/sample.xlsx", "md5": "/tmp/bpaworkflow-x/sample.md5"},
		MetadataInfo: map[string]map[string]string{
			"sample.xlsx": {"base_url": "https://example.com/does-not-exist/", "ticket": "BPAOPS-999"},
		},
	}))
	require.NoError(t, s.SetSpreadsheetResult(ctx, job.ID, List([]string{"row 2: Sample ID is required"})))
	require.NoError(t, s.SetManifestResult(ctx, job.ID, List(nil)))
	require.NoError(t, s.SetDiff(ctx, job.ID, Placeholder("please wait...")))

	got, err := s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.State.Staged())
	assert.Equal(t, "BPAOPS-999", got.State.MetadataInfo["sample.xlsx"]["ticket"])

	items, ok := got.State.XLSX.Items()
	require.True(t, ok)
	assert.Equal(t, []string{"row 2: Sample ID is required"}, items)
	assert.True(t, got.State.MD5.Clean())
	assert.Equal(t, "please wait...", got.State.Diff.Text())
	assert.False(t, got.State.Complete)

	require.NoError(t, s.SetReconciliation(ctx, job.ID, nil, List([]string{"dangling resource x"})))
	require.NoError(t, s.MarkComplete(ctx, job.ID))

	got, err = s.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.True(t, got.State.Complete)
	assert.Equal(t, []string{}, got.State.NewDataTypes)
	diff, ok := got.State.Diff.Items()
	require.True(t, ok)
	assert.Equal(t, []string{"dangling resource x"}, diff)
	// earlier keys survive later merges
	assert.Equal(t, "/tmp/bpaworkflow-x", got.State.Dir)
}

func TestStoreStateSizeLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	s.maxStateByte = 64
	job := createJob(t, s)

	big := make([]string, 20)
	for i := range big {
		big[i] = "a long diagnostic message"
	}
	err := s.SetDiff(context.Background(), job.ID, List(big))
	assert.ErrorIs(t, err, ErrStateTooLarge)

	got, err := s.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.True(t, got.State.Diff.IsPending())
}

func TestJobStatusProjection(t *testing.T) {
	job := &Job{
		ID:       "id-1",
		Importer: "x",
		State: State{
			XLSX:         List(nil),
			Diff:         Placeholder("please wait..."),
			StagingError: "disk full",
		},
	}
	st := job.Status()
	assert.Equal(t, "id-1", st.ID)
	assert.False(t, st.Complete)
	assert.True(t, st.MD5.IsPending())
	assert.Equal(t, "disk full", st.Error)
}

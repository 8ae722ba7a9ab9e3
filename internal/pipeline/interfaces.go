package pipeline

import (
	"context"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/queue"
	"github.com/bioplatforms/bpaworkflow/internal/snapshot"
	"github.com/bioplatforms/bpaworkflow/internal/staging"
)

//go:generate mockgen -destination=mocks/mock_pipeline.go -package=mocks github.com/bioplatforms/bpaworkflow/internal/pipeline Snapshotter,Stager,Enqueuer

// JobStore persists jobs and their per-stage results.
type JobStore interface {
	Create(ctx context.Context, req jobstate.NewJob) (*jobstate.Job, error)
	Get(ctx context.Context, id string) (*jobstate.Job, error)
	CountByFingerprint(ctx context.Context, fingerprint string) (int, error)
	SetStaged(ctx context.Context, id string, staged jobstate.Staged) error
	SetStagingError(ctx context.Context, id, msg string) error
	SetSpreadsheetResult(ctx context.Context, id string, r jobstate.Result) error
	SetManifestResult(ctx context.Context, id string, r jobstate.Result) error
	SetDiff(ctx context.Context, id string, r jobstate.Result) error
	SetReconciliation(ctx context.Context, id string, newDataTypes []string, diff jobstate.Result) error
	MarkComplete(ctx context.Context, id string) error
}

// Enqueuer schedules a stage of a job.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
}

// Importers resolves importer ids.
type Importers interface {
	Lookup(name string) (importer.Importer, error)
}

// Stager writes uploads to disk for the validators and removes them after.
type Stager interface {
	Stage(ctx context.Context, jobID string, files []staging.File, contextFields []string) (jobstate.Staged, error)
	Release(dir string) error
}

// Snapshotter builds prior (staged == nil) and post catalogue snapshots.
type Snapshotter interface {
	Build(ctx context.Context, imp importer.Importer, staged *jobstate.Staged) (*snapshot.Snapshot, error)
}

var (
	_ JobStore    = (*jobstate.Store)(nil)
	_ Enqueuer    = (*queue.Queue)(nil)
	_ Importers   = (*importer.Registry)(nil)
	_ Stager      = (*staging.Manager)(nil)
	_ Snapshotter = (*snapshot.Builder)(nil)
)

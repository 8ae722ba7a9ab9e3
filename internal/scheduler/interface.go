package scheduler

import (
	"context"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/staging"
)

//go:generate mockgen -destination=mocks/mock_scheduler.go -package=mocks github.com/bioplatforms/bpaworkflow/internal/scheduler Sweeper,TaskPruner

// Sweeper removes staging directories abandoned by crashed jobs.
type Sweeper interface {
	Cleanup(ctx context.Context, olderThan time.Duration) (staging.CleanupReport, error)
}

// TaskPruner deletes finished stage tasks past their retention.
type TaskPruner interface {
	PruneFinished(ctx context.Context, olderThan time.Duration) (int, error)
}

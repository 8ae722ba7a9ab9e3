package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/events"
	"github.com/bioplatforms/bpaworkflow/internal/log"
	"github.com/bioplatforms/bpaworkflow/internal/pipeline"
	"github.com/bioplatforms/bpaworkflow/internal/queue"
)

// TaskQueue is the stage queue as seen by workers.
type TaskQueue interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (string, error)
	Dequeue(ctx context.Context) (*queue.Task, error)
	Complete(ctx context.Context, taskID string, status queue.Status, lastError *string) error
	RequeueRunning(ctx context.Context) (int, error)
}

// StageRunner executes one stage of a job.
type StageRunner interface {
	Run(ctx context.Context, jobID string, stage pipeline.Stage) (pipeline.Stage, bool, error)
}

// Dispatcher dequeues stage tasks and runs them on a fixed pool of workers.
type Dispatcher struct {
	queue   TaskQueue
	runner  StageRunner
	events  *events.Hub
	workers int
	poll    time.Duration
	logger  *slog.Logger
}

// New creates a Dispatcher. hub may be nil.
func New(q TaskQueue, runner StageRunner, hub *events.Hub, cfg config.DispatchConfig) *Dispatcher {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	return &Dispatcher{
		queue:   q,
		runner:  runner,
		events:  hub,
		workers: workers,
		poll:    poll,
		logger:  log.WithComponent("dispatch"),
	}
}

// Start requeues tasks abandoned by a previous process and runs the workers
// until ctx is cancelled. It blocks until every worker has returned.
func (d *Dispatcher) Start(ctx context.Context) error {
	n, err := d.queue.RequeueRunning(ctx)
	if err != nil {
		return fmt.Errorf("recover running stages: %w", err)
	}
	if n > 0 {
		d.logger.Warn("requeued stages left running by a previous process", "count", n)
	}

	d.logger.Info("dispatch loop started", "workers", d.workers, "poll_interval", d.poll)
	defer d.logger.Info("dispatch loop stopped")

	var wg sync.WaitGroup
	for i := 0; i < d.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			d.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	return ctx.Err()
}

func (d *Dispatcher) work(ctx context.Context, worker int) {
	ticker := time.NewTicker(d.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before sleeping again.
			for ctx.Err() == nil {
				ran, err := d.processNext(ctx)
				if err != nil {
					d.logger.Error("failed to process stage", "worker", worker, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// processNext claims and runs one task. It reports whether a task was found.
func (d *Dispatcher) processNext(ctx context.Context) (bool, error) {
	task, err := d.queue.Dequeue(ctx)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if task == nil {
		return false, nil
	}
	d.execute(ctx, task)
	return true, nil
}

func (d *Dispatcher) execute(ctx context.Context, task *queue.Task) {
	logger := log.WithJob(task.JobID).With("stage", task.Stage, "task_id", task.ID)
	logger.Debug("running stage", "attempt", task.Attempt)

	// Bookkeeping must land even when shutdown cancels ctx mid-stage.
	bg := context.WithoutCancel(ctx)

	stage, err := pipeline.ParseStage(task.Stage)
	if err != nil {
		d.fail(bg, task, err, logger)
		return
	}

	next, more, err := d.runner.Run(ctx, task.JobID, stage)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			logger.Warn("stage interrupted by shutdown, it will be requeued on restart")
			return
		}
		d.fail(bg, task, err, logger)
		return
	}

	// Enqueue is idempotent per (job, stage), so a crash before Complete
	// leaves one next-stage task rather than a second chain on restart.
	if more {
		if _, err := d.queue.Enqueue(bg, queue.EnqueueRequest{JobID: task.JobID, Stage: string(next)}); err != nil {
			d.fail(bg, task, fmt.Errorf("queue %s stage: %w", next, err), logger)
			return
		}
	}
	if err := d.queue.Complete(bg, task.ID, queue.StatusSucceeded, nil); err != nil {
		logger.Error("failed to complete stage", "error", err)
	}

	d.publish(events.TypeStageSucceeded, task, map[string]string{"stage": task.Stage, "next": string(next)})
	if stage == pipeline.StageComplete {
		d.publish(events.TypeJobCompleted, task, nil)
	}
}

func (d *Dispatcher) fail(ctx context.Context, task *queue.Task, cause error, logger *slog.Logger) {
	msg := cause.Error()
	logger.Error("stage failed", "error", msg)
	if err := d.queue.Complete(ctx, task.ID, queue.StatusFailed, &msg); err != nil {
		logger.Error("failed to complete stage", "error", err)
	}
	d.publish(events.TypeStageFailed, task, map[string]string{"stage": task.Stage, "error": msg})
}

func (d *Dispatcher) publish(eventType string, task *queue.Task, data any) {
	if d.events != nil {
		d.events.Publish(eventType, task.JobID, data)
	}
}

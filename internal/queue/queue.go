package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const maxErrorBytes = 16 * 1024

type Queue struct {
	db *sql.DB
}

func New(db *sql.DB) *Queue {
	return &Queue{db: db}
}

func (q *Queue) Enqueue(ctx context.Context, req EnqueueRequest) (string, error) {
	if req.JobID == "" {
		return "", fmt.Errorf("job id is empty")
	}
	if req.Stage == "" {
		return "", fmt.Errorf("stage is empty")
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(timestampFormat)

	res, err := q.db.ExecContext(ctx, `
INSERT INTO stage_queue(id, job_id, stage, status, attempt, created_at)
VALUES(?, ?, ?, ?, 1, ?)
ON CONFLICT(job_id, stage) DO NOTHING;
`, id, req.JobID, req.Stage, StatusQueued, now)
	if err != nil {
		return "", fmt.Errorf("enqueue stage: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 1 {
		return id, nil
	}

	// A stage is queued at most once per job. Re-enqueueing after a crash
	// between enqueue and complete returns the task already on record.
	var existing string
	err = q.db.QueryRowContext(ctx, `
SELECT id FROM stage_queue WHERE job_id = ? AND stage = ?;
`, req.JobID, req.Stage).Scan(&existing)
	if err != nil {
		return "", fmt.Errorf("enqueue stage: lookup existing task: %w", err)
	}
	return existing, nil
}

// Dequeue claims the oldest queued task and marks it running. Returns (nil, nil)
// if the queue is empty. The claim is a single UPDATE, so concurrent workers
// never receive the same task.
func (q *Queue) Dequeue(ctx context.Context) (*Task, error) {
	nowS := time.Now().UTC().Format(timestampFormat)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM stage_queue
  WHERE status = ?
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE stage_queue
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING id, job_id, stage, status, attempt, created_at, started_at, completed_at, last_error;
`, StatusQueued, StatusRunning, nowS)

	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue stage: %w", err)
	}
	return t, nil
}

// Complete marks a task terminal.
func (q *Queue) Complete(ctx context.Context, taskID string, status Status, lastError *string) error {
	if taskID == "" {
		return fmt.Errorf("task id is empty")
	}
	if status != StatusSucceeded && status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	var errVal any
	if lastError != nil {
		s := *lastError
		if len(s) > maxErrorBytes {
			s = s[:maxErrorBytes]
		}
		errVal = s
	}

	res, err := q.db.ExecContext(ctx, `
UPDATE stage_queue
SET status = ?, completed_at = ?, last_error = ?
WHERE id = ?;
`, status, time.Now().UTC().Format(timestampFormat), errVal, taskID)
	if err != nil {
		return fmt.Errorf("update stage completion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// RequeueRunning returns tasks left running by a previous process to the
// queue, bumping their attempt counter. Used once at startup.
func (q *Queue) RequeueRunning(ctx context.Context) (int, error) {
	res, err := q.db.ExecContext(ctx, `
UPDATE stage_queue
SET status = ?, started_at = NULL, attempt = attempt + 1
WHERE status = ?;
`, StatusQueued, StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("requeue running stages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeue running stages: %w", err)
	}
	return int(n), nil
}

// PruneFinished deletes succeeded and failed tasks that completed more than
// olderThan ago and returns how many were removed.
func (q *Queue) PruneFinished(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("retention must be positive")
	}
	cutoff := time.Now().UTC().Add(-olderThan).Format(timestampFormat)
	res, err := q.db.ExecContext(ctx, `
DELETE FROM stage_queue
WHERE status IN (?, ?)
  AND completed_at IS NOT NULL
  AND julianday(completed_at) < julianday(?);
`, StatusSucceeded, StatusFailed, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune finished stages: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune finished stages: %w", err)
	}
	return int(n), nil
}

// Depth returns the number of queued tasks.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM stage_queue WHERE status = ?;", StatusQueued).Scan(&n); err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// TasksForJob lists the stage tasks of one job in creation order.
func (q *Queue) TasksForJob(ctx context.Context, jobID string) ([]*Task, error) {
	rows, err := q.db.QueryContext(ctx, `
SELECT id, job_id, stage, status, attempt, created_at, started_at, completed_at, last_error
FROM stage_queue
WHERE job_id = ?
ORDER BY created_at ASC, rowid ASC;
`, jobID)
	if err != nil {
		return nil, fmt.Errorf("list stages for job: %w", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		t            Task
		statusS      string
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		lastError    sql.NullString
	)
	if err := row.Scan(&t.ID, &t.JobID, &t.Stage, &statusS, &t.Attempt, &createdAtS, &startedAtS, &completedAtS, &lastError); err != nil {
		return nil, err
	}

	t.Status = Status(statusS)
	if ts, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		t.CreatedAt = ts
	}
	t.StartedAt = parseNullTime(startedAtS)
	t.CompletedAt = parseNullTime(completedAtS)
	if lastError.Valid {
		t.LastError = &lastError.String
	}
	return &t, nil
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

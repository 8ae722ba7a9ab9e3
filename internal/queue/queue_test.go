package queue

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// insertJob satisfies the stage_queue foreign key.
func insertJob(t *testing.T, db *sql.DB, id string) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO verification_job(id, submitted_at, importer, xlsx_name, md5_name, fingerprint)
VALUES(?, '2026-01-01T00:00:00Z', 'x', 'a.xlsx', 'a.md5', 'fp');`, id)
	if err != nil {
		t.Fatalf("insert job: %v", err)
	}
}

func TestQueueEnqueueDequeueFIFO(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	insertJob(t, db, "job-1")
	insertJob(t, db, "job-2")
	q := New(db)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, EnqueueRequest{JobID: "job-1", Stage: "setup"})
	if err != nil {
		t.Fatalf("Enqueue 1: %v", err)
	}
	id2, err := q.Enqueue(ctx, EnqueueRequest{JobID: "job-2", Stage: "setup"})
	if err != nil {
		t.Fatalf("Enqueue 2: %v", err)
	}

	depth, err := q.Depth(ctx)
	if err != nil || depth != 2 {
		t.Fatalf("Depth = %d, %v; want 2", depth, err)
	}

	t1, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 1: %v", err)
	}
	if t1 == nil || t1.ID != id1 || t1.Status != StatusRunning || t1.StartedAt == nil || t1.JobID != "job-1" {
		t.Fatalf("unexpected task1: %#v", t1)
	}

	t2, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 2: %v", err)
	}
	if t2 == nil || t2.ID != id2 {
		t.Fatalf("unexpected task2: %#v", t2)
	}

	t3, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 3: %v", err)
	}
	if t3 != nil {
		t.Fatalf("expected empty queue, got %#v", t3)
	}
}

func TestQueueEnqueueValidation(t *testing.T) {
	t.Parallel()
	q := New(openTestDB(t))

	if _, err := q.Enqueue(context.Background(), EnqueueRequest{Stage: "setup"}); err == nil {
		t.Fatal("expected error for empty job id")
	}
	if _, err := q.Enqueue(context.Background(), EnqueueRequest{JobID: "j"}); err == nil {
		t.Fatal("expected error for empty stage")
	}
}

func TestQueueEnqueueOncePerStage(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	insertJob(t, db, "job-1")
	q := New(db)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, EnqueueRequest{JobID: "job-1", Stage: "xlsx"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	again, err := q.Enqueue(ctx, EnqueueRequest{JobID: "job-1", Stage: "xlsx"})
	if err != nil {
		t.Fatalf("Enqueue again: %v", err)
	}
	if again != first {
		t.Fatalf("second Enqueue returned %q, want existing task %q", again, first)
	}

	// Still idempotent once the task has finished.
	if err := q.Complete(ctx, first, StatusSucceeded, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if id, err := q.Enqueue(ctx, EnqueueRequest{JobID: "job-1", Stage: "xlsx"}); err != nil || id != first {
		t.Fatalf("Enqueue after complete = %q, %v; want %q", id, err, first)
	}

	tasks, err := q.TasksForJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != StatusSucceeded {
		t.Fatalf("tasks = %+v; want one succeeded task", tasks)
	}
}

func TestQueueCompleteAndHistory(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	insertJob(t, db, "job-1")
	q := New(db)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, EnqueueRequest{JobID: "job-1", Stage: "setup"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	msg := "disk full"
	if err := q.Complete(ctx, id, StatusFailed, &msg); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := q.Complete(ctx, id, StatusRunning, nil); err == nil {
		t.Fatal("expected non-terminal status to be rejected")
	}
	if err := q.Complete(ctx, "missing", StatusSucceeded, nil); err != ErrTaskNotFound {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}

	tasks, err := q.TasksForJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Status != StatusFailed || tasks[0].LastError == nil || *tasks[0].LastError != msg {
		t.Fatalf("unexpected history: %#v", tasks)
	}
	if tasks[0].CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestQueueRequeueRunning(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	insertJob(t, db, "job-1")
	q := New(db)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, EnqueueRequest{JobID: "job-1", Stage: "reconcile"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := q.Dequeue(ctx); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}

	n, err := q.RequeueRunning(ctx)
	if err != nil || n != 1 {
		t.Fatalf("RequeueRunning = %d, %v; want 1", n, err)
	}

	task, err := q.Dequeue(ctx)
	if err != nil || task == nil {
		t.Fatalf("Dequeue after requeue: %v, %v", task, err)
	}
	if task.Attempt != 2 {
		t.Fatalf("expected attempt 2, got %d", task.Attempt)
	}
}

func TestQueueConcurrentDequeueClaimsOnce(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	q := New(db)
	ctx := context.Background()

	const n = 20
	for i := 0; i < n; i++ {
		jobID := "job-" + string(rune('a'+i))
		insertJob(t, db, jobID)
		if _, err := q.Enqueue(ctx, EnqueueRequest{JobID: jobID, Stage: "setup"}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	var (
		mu   sync.Mutex
		seen = map[string]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				task, err := q.Dequeue(ctx)
				if err != nil {
					t.Errorf("Dequeue: %v", err)
					return
				}
				if task == nil {
					return
				}
				mu.Lock()
				seen[task.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Fatalf("expected %d distinct tasks, got %d", n, len(seen))
	}
	for id, c := range seen {
		if c != 1 {
			t.Fatalf("task %s claimed %d times", id, c)
		}
	}
}

func TestQueuePruneFinished(t *testing.T) {
	t.Parallel()
	db := openTestDB(t)
	insertJob(t, db, "job-1")
	q := New(db)
	ctx := context.Background()

	var ids []string
	for _, stage := range []string{"setup", "xlsx", "md5"} {
		id, err := q.Enqueue(ctx, EnqueueRequest{JobID: "job-1", Stage: stage})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}
	if err := q.Complete(ctx, ids[0], StatusSucceeded, nil); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	msg := "boom"
	if err := q.Complete(ctx, ids[1], StatusFailed, &msg); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	// Backdate the succeeded task only.
	if _, err := db.Exec(`UPDATE stage_queue SET completed_at = '2020-01-01T00:00:00.5Z' WHERE id = ?;`, ids[0]); err != nil {
		t.Fatalf("backdate: %v", err)
	}

	n, err := q.PruneFinished(ctx, time.Hour)
	if err != nil {
		t.Fatalf("PruneFinished: %v", err)
	}
	if n != 1 {
		t.Fatalf("pruned %d tasks, want 1", n)
	}
	tasks, err := q.TasksForJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("TasksForJob: %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != ids[1] || tasks[1].ID != ids[2] {
		t.Fatalf("unexpected remaining tasks: %#v", tasks)
	}

	if _, err := q.PruneFinished(ctx, 0); err == nil {
		t.Fatal("expected error for zero retention")
	}
}

// Package inspect renders an operator report for one submission: its stored
// progress record, the stage tasks that ran for it and the staged files left
// on disk.
package inspect

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/queue"
)

// JobGetter loads a stored job.
type JobGetter interface {
	Get(ctx context.Context, id string) (*jobstate.Job, error)
}

// TaskLister lists the stage tasks recorded for a job.
type TaskLister interface {
	TasksForJob(ctx context.Context, jobID string) ([]*queue.Task, error)
}

// Report is the structured JSON representation of a submission report.
type Report struct {
	SubmissionID string          `json:"submission_id"`
	Importer     string          `json:"importer"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	Fingerprint  string          `json:"fingerprint"`
	XLSXName     string          `json:"xlsx_name"`
	MD5Name      string          `json:"md5_name"`
	StagingDir   string          `json:"staging_dir,omitempty"`
	Staged       []StagedFile    `json:"staged,omitempty"`
	Status       jobstate.Status `json:"status"`
	Steps        []Step          `json:"steps"`
}

// StagedFile is one file recorded by the setup stage.
type StagedFile struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	Present bool   `json:"present"`
}

// Step is one stage task attempt.
type Step struct {
	Stage       string     `json:"stage"`
	Status      string     `json:"status"`
	Attempt     int        `json:"attempt"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// Gather collects the report data for a submission.
func Gather(ctx context.Context, jobs JobGetter, tasks TaskLister, id string) (*Report, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("submission id is required")
	}
	job, err := jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	history, err := tasks.TasksForJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list stage tasks: %w", err)
	}

	report := &Report{
		SubmissionID: job.ID,
		Importer:     job.Importer,
		SubmittedAt:  job.SubmittedAt,
		Fingerprint:  job.Fingerprint,
		XLSXName:     job.XLSXName,
		MD5Name:      job.MD5Name,
		StagingDir:   job.State.Dir,
		Staged:       stagedFiles(job.State.Paths),
		Status:       job.Status(),
		Steps:        make([]Step, 0, len(history)),
	}
	for _, t := range history {
		step := Step{
			Stage:       t.Stage,
			Status:      string(t.Status),
			Attempt:     t.Attempt,
			CreatedAt:   t.CreatedAt,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
		}
		if t.LastError != nil {
			step.LastError = *t.LastError
		}
		report.Steps = append(report.Steps, step)
	}
	return report, nil
}

// BuildReport renders a terminal-friendly report for a submission.
func BuildReport(ctx context.Context, jobs JobGetter, tasks TaskLister, id string) (string, error) {
	report, err := Gather(ctx, jobs, tasks, id)
	if err != nil {
		return "", err
	}
	return Render(report), nil
}

// BuildJSONReport returns the machine-readable report.
func BuildJSONReport(ctx context.Context, jobs JobGetter, tasks TaskLister, id string) (string, error) {
	report, err := Gather(ctx, jobs, tasks, id)
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal json report: %w", err)
	}
	return string(data), nil
}

// Render formats a gathered report as text.
func Render(report *Report) string {
	state := "in progress"
	if report.Status.Complete {
		state = "complete"
	}

	var out strings.Builder
	fmt.Fprintf(&out, "Submission Report\n")
	fmt.Fprintf(&out, "Submission  : %s\n", report.SubmissionID)
	fmt.Fprintf(&out, "Importer    : %s\n", report.Importer)
	fmt.Fprintf(&out, "Submitted   : %s\n", report.SubmittedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&out, "State       : %s\n", state)
	fmt.Fprintf(&out, "Fingerprint : %s\n", renderUnset(report.Fingerprint, "<none>"))
	fmt.Fprintf(&out, "Uploads     : %s, %s\n", report.XLSXName, report.MD5Name)
	if report.Status.Error != "" {
		fmt.Fprintf(&out, "Error       : %s\n", report.Status.Error)
	}
	fmt.Fprintf(&out, "Staging     : %s\n", renderUnset(report.StagingDir, "<not staged>"))
	for _, f := range report.Staged {
		mark := "present"
		if !f.Present {
			mark = "missing"
		}
		fmt.Fprintf(&out, "  - %s: %s (%s)\n", f.Name, f.Path, mark)
	}
	fmt.Fprintf(&out, "Results     : xlsx=%s md5=%s diff=%s\n",
		summarize(report.Status.XLSX), summarize(report.Status.MD5), summarize(report.Status.Diff))
	fmt.Fprintf(&out, "\n")

	if len(report.Steps) == 0 {
		fmt.Fprintf(&out, "No stage tasks recorded.\n")
	}
	for i, step := range report.Steps {
		fmt.Fprintf(&out, "[%d] %s (attempt %d, %s)\n", i+1, step.Stage, step.Attempt, step.Status)
		fmt.Fprintf(&out, "    queued    : %s\n", step.CreatedAt.UTC().Format(time.RFC3339))
		fmt.Fprintf(&out, "    started   : %s\n", renderTime(step.StartedAt))
		fmt.Fprintf(&out, "    completed : %s\n", renderTime(step.CompletedAt))
		if step.StartedAt != nil && step.CompletedAt != nil {
			fmt.Fprintf(&out, "    duration  : %s\n", step.CompletedAt.Sub(*step.StartedAt).Round(time.Millisecond))
		}
		if step.LastError != "" {
			fmt.Fprintf(&out, "    error     : %s\n", step.LastError)
		}
	}
	return strings.TrimRight(out.String(), "\n") + "\n"
}

func stagedFiles(paths map[string]string) []StagedFile {
	if len(paths) == 0 {
		return nil
	}
	names := make([]string, 0, len(paths))
	for name := range paths {
		names = append(names, name)
	}
	sort.Strings(names)

	files := make([]StagedFile, 0, len(names))
	for _, name := range names {
		p := paths[name]
		_, err := os.Stat(p)
		files = append(files, StagedFile{Name: name, Path: filepath.Clean(p), Present: err == nil})
	}
	return files
}

func summarize(r jobstate.Result) string {
	switch {
	case r.IsPending():
		return "pending"
	case r.IsPlaceholder():
		return "waiting"
	}
	items, _ := r.Items()
	if len(items) == 0 {
		return "ok"
	}
	return fmt.Sprintf("%d", len(items))
}

func renderTime(t *time.Time) string {
	if t == nil {
		return "<none>"
	}
	return t.UTC().Format(time.RFC3339)
}

func renderUnset(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

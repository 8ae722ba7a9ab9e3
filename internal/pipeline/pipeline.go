// Package pipeline drives a submission through its stages:
// setup, xlsx, md5, reconcile and complete.
//
// Every stage reads the job's persisted state, does its work and writes only
// the state keys it owns. Stages run one at a time per job, either from the
// stage queue (Run) or in-process (Drive).
package pipeline

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zeebo/blake3"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/log"
	"github.com/bioplatforms/bpaworkflow/internal/queue"
	"github.com/bioplatforms/bpaworkflow/internal/reconcile"
	"github.com/bioplatforms/bpaworkflow/internal/staging"
	"github.com/bioplatforms/bpaworkflow/internal/validate"
)

const (
	// PlaceholderPending is shown while reconciliation runs.
	PlaceholderPending = "please wait..."
	// PlaceholderBlocked replaces reconciliation when a validator found problems.
	PlaceholderBlocked = "no import result until md5 and xlsx are both clean"
)

// Upload is one file of a submission.
type Upload struct {
	Name string
	Data []byte
}

// Submission is what a client sends to start a job.
type Submission struct {
	Importer string
	XLSX     Upload
	MD5      Upload
}

// Orchestrator creates jobs and runs their stages.
type Orchestrator struct {
	store          JobStore
	queue          Enqueuer
	importers      Importers
	stager         Stager
	snapshots      Snapshotter
	maxUploadBytes int64
	logger         *slog.Logger
}

// New creates an Orchestrator. A non-positive maxUploadBytes disables the
// per-file size limit.
func New(store JobStore, q Enqueuer, importers Importers, stager Stager, snapshots Snapshotter, maxUploadBytes int64) *Orchestrator {
	return &Orchestrator{
		store:          store,
		queue:          q,
		importers:      importers,
		stager:         stager,
		snapshots:      snapshots,
		maxUploadBytes: maxUploadBytes,
		logger:         log.WithComponent("pipeline"),
	}
}

// Create checks and persists a submission and returns its job id. Nothing is
// persisted when the submission is rejected; rejections wrap
// staging.ErrForbidden.
func (o *Orchestrator) Create(ctx context.Context, sub Submission) (string, error) {
	if _, err := o.importers.Lookup(sub.Importer); err != nil {
		return "", fmt.Errorf("%w: %w", staging.ErrForbidden, err)
	}
	for _, f := range []struct {
		slot string
		up   Upload
	}{{staging.SlotXLSX, sub.XLSX}, {staging.SlotMD5, sub.MD5}} {
		if err := staging.ValidateFilename(f.slot, f.up.Name); err != nil {
			return "", err
		}
		if o.maxUploadBytes > 0 && int64(len(f.up.Data)) > o.maxUploadBytes {
			return "", fmt.Errorf("%w: %s upload exceeds %d bytes", staging.ErrForbidden, f.slot, o.maxUploadBytes)
		}
	}

	fingerprint := Fingerprint(sub.XLSX.Data, sub.MD5.Data)
	if n, err := o.store.CountByFingerprint(ctx, fingerprint); err != nil {
		return "", err
	} else if n > 0 {
		o.logger.Info("file pair submitted before", "importer", sub.Importer, "fingerprint", fingerprint, "previous", n)
	}

	job, err := o.store.Create(ctx, jobstate.NewJob{
		Importer:    sub.Importer,
		XLSXName:    sub.XLSX.Name,
		XLSXData:    sub.XLSX.Data,
		MD5Name:     sub.MD5.Name,
		MD5Data:     sub.MD5.Data,
		Fingerprint: fingerprint,
	})
	if err != nil {
		return "", err
	}
	log.WithJob(job.ID).Info("submission accepted", "importer", sub.Importer, "xlsx", sub.XLSX.Name, "md5", sub.MD5.Name)
	return job.ID, nil
}

// Submit creates the job and queues its first stage.
func (o *Orchestrator) Submit(ctx context.Context, sub Submission) (string, error) {
	id, err := o.Create(ctx, sub)
	if err != nil {
		return "", err
	}
	if _, err := o.queue.Enqueue(ctx, queue.EnqueueRequest{JobID: id, Stage: string(StageSetup)}); err != nil {
		return "", fmt.Errorf("queue setup stage: %w", err)
	}
	return id, nil
}

// Fingerprint identifies a file pair.
func Fingerprint(xlsx, md5 []byte) string {
	h := blake3.New()
	_, _ = fmt.Fprintf(h, "%d:", len(xlsx))
	_, _ = h.Write(xlsx)
	_, _ = h.Write(md5)
	return hex.EncodeToString(h.Sum(nil))
}

// Run executes one stage of a job. It reports the stage to run next, or
// false when the job's chain ends here.
func (o *Orchestrator) Run(ctx context.Context, jobID string, stage Stage) (Stage, bool, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return "", false, err
	}
	logger := log.WithJob(jobID).With("stage", string(stage), "importer", job.Importer)

	// The complete stage is terminal and runs at most once per job.
	if job.State.Complete {
		logger.Info("job already complete, stage skipped")
		return "", false, nil
	}

	imp, err := o.importers.Lookup(job.Importer)
	if err != nil {
		return "", false, err
	}

	switch stage {
	case StageSetup:
		err = o.setup(ctx, job, imp)
	case StageXLSX:
		err = o.checkSpreadsheet(ctx, job, imp)
	case StageMD5:
		err = o.checkManifest(ctx, job, imp)
	case StageReconcile:
		err = o.reconcile(ctx, job, imp, logger)
	case StageComplete:
		err = o.complete(ctx, job, logger)
	default:
		err = fmt.Errorf("unknown stage %q", stage)
	}
	if err != nil {
		logger.Error("stage failed", "error", err)
		return "", false, err
	}
	logger.Debug("stage done")

	next, ok := Next(stage)
	return next, ok, nil
}

// Drive runs every stage of a job in-process, in order.
func (o *Orchestrator) Drive(ctx context.Context, jobID string) error {
	stage, ok := StageSetup, true
	for ok {
		var err error
		if stage, ok, err = o.Run(ctx, jobID, stage); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the externally visible state of a job.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (jobstate.Status, error) {
	job, err := o.store.Get(ctx, jobID)
	if err != nil {
		return jobstate.Status{}, err
	}
	return job.Status(), nil
}

func (o *Orchestrator) setup(ctx context.Context, job *jobstate.Job, imp importer.Importer) error {
	if job.State.Staged() {
		return nil
	}
	staged, err := o.stager.Stage(ctx, job.ID, []staging.File{
		{Slot: staging.SlotXLSX, Name: job.XLSXName, Data: job.XLSXData},
		{Slot: staging.SlotMD5, Name: job.MD5Name, Data: job.MD5Data},
	}, imp.ContextFields())
	if err != nil {
		if recErr := o.store.SetStagingError(ctx, job.ID, err.Error()); recErr != nil {
			return errors.Join(err, recErr)
		}
		return fmt.Errorf("stage files: %w", err)
	}
	return o.store.SetStaged(ctx, job.ID, staged)
}

func (o *Orchestrator) checkSpreadsheet(ctx context.Context, job *jobstate.Job, imp importer.Importer) error {
	if !job.State.Staged() {
		return fmt.Errorf("job has no staged files")
	}
	errs := validate.Spreadsheet(imp, job.State.Paths[staging.SlotXLSX], job.State.MetadataInfo)
	return o.store.SetSpreadsheetResult(ctx, job.ID, jobstate.List(capMessages(errs, maxResultBytes)))
}

func (o *Orchestrator) checkManifest(ctx context.Context, job *jobstate.Job, imp importer.Importer) error {
	if !job.State.Staged() {
		return fmt.Errorf("job has no staged files")
	}
	errs := validate.Manifest(imp, job.State.Paths[staging.SlotMD5])
	return o.store.SetManifestResult(ctx, job.ID, jobstate.List(capMessages(errs, maxResultBytes)))
}

func (o *Orchestrator) reconcile(ctx context.Context, job *jobstate.Job, imp importer.Importer, logger *slog.Logger) error {
	if !job.State.XLSX.Clean() || !job.State.MD5.Clean() {
		logger.Info("validation failed, reconciliation skipped")
		return o.store.SetDiff(ctx, job.ID, jobstate.Placeholder(PlaceholderBlocked))
	}
	if err := o.store.SetDiff(ctx, job.ID, jobstate.Placeholder(PlaceholderPending)); err != nil {
		return err
	}

	report, err := o.buildReport(ctx, imp, job.State)
	if err != nil {
		logger.Warn("linkage check failed", "error", err)
		return o.store.SetReconciliation(ctx, job.ID, nil, linkageFailure(err))
	}
	logger.Info("linkage checked", "new_data_types", report.NewDataTypes, "diagnostics", len(report.Diagnostics))

	diags := capMessages(report.Diagnostics, maxResultBytes)
	err = o.store.SetReconciliation(ctx, job.ID, report.NewDataTypes, jobstate.List(diags))
	if errors.Is(err, jobstate.ErrStateTooLarge) {
		logger.Warn("linkage report too large to store", "diagnostics", len(report.Diagnostics), "error", err)
		return o.store.SetReconciliation(ctx, job.ID, nil, linkageFailure(err))
	}
	return err
}

// maxResultBytes bounds each stored message list so xlsx, md5 and diff fit
// in the job state cap together.
const maxResultBytes = jobstate.DefaultMaxStateBytes / 4

func linkageFailure(err error) jobstate.Result {
	return jobstate.List([]string{fmt.Sprintf("Linkage check failed with an error: %v", err)})
}

// capMessages keeps the leading messages whose JSON encoding fits in budget
// bytes and replaces the rest with a count line.
func capMessages(diags []string, budget int) []string {
	used := 2 // brackets
	for i, d := range diags {
		b, _ := json.Marshal(d)
		used += len(b) + 1
		if used > budget {
			out := make([]string, i, i+1)
			copy(out, diags[:i])
			return append(out, fmt.Sprintf("... and %d more", len(diags)-i))
		}
	}
	return diags
}

// buildReport snapshots the catalogue before and after the submission and
// reconciles them. Panics are returned as errors.
func (o *Orchestrator) buildReport(ctx context.Context, imp importer.Importer, st jobstate.State) (report reconcile.Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()

	prior, err := o.snapshots.Build(ctx, imp, nil)
	if err != nil {
		return reconcile.Report{}, err
	}
	post, err := o.snapshots.Build(ctx, imp, &jobstate.Staged{Dir: st.Dir, Paths: st.Paths, MetadataInfo: st.MetadataInfo})
	if err != nil {
		return reconcile.Report{}, err
	}
	return reconcile.Reconcile(prior, post), nil
}

func (o *Orchestrator) complete(ctx context.Context, job *jobstate.Job, logger *slog.Logger) error {
	if job.State.Dir != "" {
		if err := o.stager.Release(job.State.Dir); err != nil {
			logger.Warn("failed to remove staging directory", "dir", job.State.Dir, "error", err)
		}
	}
	if err := o.store.MarkComplete(ctx, job.ID); err != nil {
		return err
	}
	logger.Info("job complete")
	return nil
}

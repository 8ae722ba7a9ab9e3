package jobstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxStateBytes = 1 << 20 // 1 MiB

// ErrStateTooLarge is returned by setters whose merged state would exceed
// the store's size cap. The stored state is left unchanged.
var ErrStateTooLarge = errors.New("job state exceeds max size")

// State keys. Each is written by exactly one setter below.
const (
	keyDir          = "dir"
	keyPaths        = "paths"
	keyMetadataInfo = "metadata_info"
	keyStagingError = "staging_error"
	keyXLSX         = "xlsx"
	keyMD5          = "md5"
	keyDiff         = "diff"
	keyNewDataTypes = "new_data_types"
	keyComplete     = "complete"
)

// Store persists verification jobs in SQLite.
type Store struct {
	db           *sql.DB
	maxStateByte int
	now          func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:           db,
		maxStateByte: DefaultMaxStateBytes,
		now:          time.Now,
	}
}

// Create inserts a new job with an empty state and returns it.
func (s *Store) Create(ctx context.Context, req NewJob) (*Job, error) {
	if req.Importer == "" {
		return nil, fmt.Errorf("importer is empty")
	}
	if req.XLSXName == "" || req.MD5Name == "" {
		return nil, fmt.Errorf("both file names are required")
	}

	job := &Job{
		ID:          uuid.NewString(),
		SubmittedAt: s.now().UTC(),
		Importer:    req.Importer,
		XLSXName:    req.XLSXName,
		XLSXData:    req.XLSXData,
		MD5Name:     req.MD5Name,
		MD5Data:     req.MD5Data,
		Fingerprint: req.Fingerprint,
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO verification_job(
  id, submitted_at, importer, xlsx_name, xlsx_data, md5_name, md5_data, fingerprint, state, updated_at
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, '{}', ?);
`, job.ID, job.SubmittedAt.Format(time.RFC3339Nano), job.Importer, job.XLSXName, job.XLSXData,
		job.MD5Name, job.MD5Data, job.Fingerprint, job.SubmittedAt.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Get loads a job by id. Returns ErrJobNotFound if it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrJobNotFound
	}

	var (
		j          Job
		submittedS string
		rawState   string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, submitted_at, importer, xlsx_name, xlsx_data, md5_name, md5_data, fingerprint, state
FROM verification_job
WHERE id = ?;
`, id).Scan(&j.ID, &submittedS, &j.Importer, &j.XLSXName, &j.XLSXData, &j.MD5Name, &j.MD5Data, &j.Fingerprint, &rawState)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}

	if t, err := time.Parse(time.RFC3339Nano, submittedS); err == nil {
		j.SubmittedAt = t
	}
	if err := json.Unmarshal([]byte(rawState), &j.State); err != nil {
		return nil, fmt.Errorf("decode state for job %q: %w", id, err)
	}
	return &j, nil
}

// CountByFingerprint returns how many jobs were submitted with the same
// file pair.
func (s *Store) CountByFingerprint(ctx context.Context, fingerprint string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM verification_job WHERE fingerprint = ?;", fingerprint).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count jobs by fingerprint: %w", err)
	}
	return n, nil
}

// SetStaged records the setup stage's staged paths and placeholder metadata.
func (s *Store) SetStaged(ctx context.Context, id string, staged Staged) error {
	return s.merge(ctx, id, map[string]any{
		keyDir:          staged.Dir,
		keyPaths:        staged.Paths,
		keyMetadataInfo: staged.MetadataInfo,
	})
}

// SetStagingError records a fatal setup failure.
func (s *Store) SetStagingError(ctx context.Context, id, msg string) error {
	return s.merge(ctx, id, map[string]any{keyStagingError: msg})
}

// SetSpreadsheetResult records the spreadsheet validator's output.
func (s *Store) SetSpreadsheetResult(ctx context.Context, id string, r Result) error {
	return s.merge(ctx, id, map[string]any{keyXLSX: r})
}

// SetManifestResult records the manifest validator's output.
func (s *Store) SetManifestResult(ctx context.Context, id string, r Result) error {
	return s.merge(ctx, id, map[string]any{keyMD5: r})
}

// SetDiff records the reconciliation stage's diagnostics or placeholder.
func (s *Store) SetDiff(ctx context.Context, id string, r Result) error {
	return s.merge(ctx, id, map[string]any{keyDiff: r})
}

// SetReconciliation records the final reconciliation output in one write.
func (s *Store) SetReconciliation(ctx context.Context, id string, newDataTypes []string, diff Result) error {
	if newDataTypes == nil {
		newDataTypes = []string{}
	}
	return s.merge(ctx, id, map[string]any{
		keyNewDataTypes: newDataTypes,
		keyDiff:         diff,
	})
}

// MarkComplete sets the terminal completion flag.
func (s *Store) MarkComplete(ctx context.Context, id string) error {
	return s.merge(ctx, id, map[string]any{keyComplete: true})
}

// merge applies updates to the job's state as a shallow merge (top-level keys
// replaced) inside one transaction.
func (s *Store) merge(ctx context.Context, id string, updates map[string]any) error {
	if id == "" {
		return fmt.Errorf("job id is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var curRaw string
	err = tx.QueryRowContext(ctx, "SELECT state FROM verification_job WHERE id = ?;", id).Scan(&curRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrJobNotFound
	}
	if err != nil {
		return fmt.Errorf("read job state: %w", err)
	}

	cur := map[string]json.RawMessage{}
	if curRaw != "" {
		if err := json.Unmarshal([]byte(curRaw), &cur); err != nil {
			return fmt.Errorf("decode stored state: %w", err)
		}
	}

	upd := make(map[string]json.RawMessage, len(updates))
	for k, v := range updates {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode state key %q: %w", k, err)
		}
		upd[k] = b
	}
	maps.Copy(cur, upd)

	merged, err := json.Marshal(cur)
	if err != nil {
		return fmt.Errorf("marshal merged state: %w", err)
	}
	if len(merged) > s.maxStateByte {
		return fmt.Errorf("%w (%d bytes)", ErrStateTooLarge, s.maxStateByte)
	}

	_, err = tx.ExecContext(ctx, `
UPDATE verification_job
SET state = ?, updated_at = ?
WHERE id = ?;
`, string(merged), s.now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("update job state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Package staging writes uploaded submission files into per-job directories
// and removes them once a job is done with them.
package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
	"github.com/bioplatforms/bpaworkflow/internal/log"
)

// ErrForbidden rejects an upload before anything is written.
var ErrForbidden = errors.New("forbidden")

const (
	SlotXLSX = "xlsx"
	SlotMD5  = "md5"

	// DirPrefix names every staging directory.
	DirPrefix = "bpaworkflow-"

	// PlaceholderBaseURL and PlaceholderComponent fill the context record of
	// staged files, which have no real publication location yet.
	PlaceholderBaseURL   = "https://example.com/does-not-exist/"
	PlaceholderComponent = "BPAOPS-999"
)

var safeFilename = regexp.MustCompile(`^[A-Za-z0-9_\- .()]+\.(md5|xlsx)$`)

// File is one uploaded file destined for a slot.
type File struct {
	Slot string
	Name string
	Data []byte
}

// CleanupReport summarizes a stale-directory sweep.
type CleanupReport struct {
	DeletedDirs int
}

// ValidateFilename checks name against the upload allow-list and the
// extension expected by slot.
func ValidateFilename(slot, name string) error {
	m := safeFilename.FindStringSubmatch(name)
	if m == nil {
		return fmt.Errorf("%w: filename %q is not allowed", ErrForbidden, name)
	}
	if m[1] != slot {
		return fmt.Errorf("%w: %s upload must have a .%s extension (got %q)", ErrForbidden, slot, slot, name)
	}
	return nil
}

// Manager owns the staging root directory.
type Manager struct {
	baseDir string
	now     func() time.Time
	logger  *slog.Logger
}

// NewManager creates a staging manager rooted at baseDir.
func NewManager(baseDir string) (*Manager, error) {
	trimmed := strings.TrimSpace(baseDir)
	if trimmed == "" {
		return nil, fmt.Errorf("staging base directory is empty")
	}
	return &Manager{
		baseDir: filepath.Clean(trimmed),
		now:     time.Now,
		logger:  log.WithComponent("staging"),
	}, nil
}

// Dir returns the staging root.
func (m *Manager) Dir() string { return m.baseDir }

// Stage writes files into a fresh directory and builds the placeholder
// context record for each of them. Any failure removes the directory.
func (m *Manager) Stage(ctx context.Context, jobID string, files []File, contextFields []string) (jobstate.Staged, error) {
	if err := ctx.Err(); err != nil {
		return jobstate.Staged{}, err
	}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		if err := ValidateFilename(f.Slot, f.Name); err != nil {
			return jobstate.Staged{}, err
		}
		if seen[f.Slot] {
			return jobstate.Staged{}, fmt.Errorf("%w: more than one %s upload", ErrForbidden, f.Slot)
		}
		seen[f.Slot] = true
	}

	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return jobstate.Staged{}, fmt.Errorf("create staging base directory: %w", err)
	}
	dir, err := os.MkdirTemp(m.baseDir, DirPrefix)
	if err != nil {
		return jobstate.Staged{}, fmt.Errorf("create staging directory: %w", err)
	}

	staged := jobstate.Staged{
		Dir:          dir,
		Paths:        make(map[string]string, len(files)),
		MetadataInfo: make(map[string]map[string]string, len(files)),
	}
	for _, f := range files {
		path := filepath.Join(dir, f.Name)
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			_ = os.RemoveAll(dir)
			return jobstate.Staged{}, fmt.Errorf("write staged %s file: %w", f.Slot, err)
		}
		staged.Paths[f.Slot] = path
		staged.MetadataInfo[f.Name] = placeholderContext(contextFields)
	}

	m.logger.Debug("files staged", "submission_id", jobID, "dir", dir, "files", len(files))
	return staged, nil
}

func placeholderContext(contextFields []string) map[string]string {
	rec := map[string]string{importer.BaseURLKey: PlaceholderBaseURL}
	for _, f := range contextFields {
		rec[f] = PlaceholderComponent
	}
	return rec
}

// Release deletes a staging directory created by Stage. Directories that are
// already gone are not an error.
func (m *Manager) Release(dir string) error {
	if err := m.owns(dir); err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove staging directory: %w", err)
	}
	return nil
}

// Cleanup removes staging and catalogue download directories whose
// modification time is older than olderThan.
func (m *Manager) Cleanup(ctx context.Context, olderThan time.Duration) (CleanupReport, error) {
	if err := ctx.Err(); err != nil {
		return CleanupReport{}, err
	}
	if olderThan <= 0 {
		return CleanupReport{}, fmt.Errorf("olderThan must be positive")
	}

	cutoff := m.now().Add(-olderThan)
	report := CleanupReport{}
	sweeps := []struct {
		dir    string
		prefix string
	}{
		{m.baseDir, DirPrefix},
		{filepath.Join(m.baseDir, "downloads"), "catalogue-"},
	}
	for _, sweep := range sweeps {
		n, err := m.sweep(ctx, sweep.dir, sweep.prefix, cutoff)
		report.DeletedDirs += n
		if err != nil {
			return report, err
		}
	}
	if report.DeletedDirs > 0 {
		m.logger.Info("stale staging directories removed", "count", report.DeletedDirs)
	}
	return report, nil
}

func (m *Manager) sweep(ctx context.Context, dir, prefix string, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read staging directory: %w", err)
	}

	deleted := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return deleted, fmt.Errorf("read staging entry info %q: %w", entry.Name(), err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return deleted, fmt.Errorf("remove staging directory %q: %w", entry.Name(), err)
		}
		deleted++
	}
	return deleted, nil
}

func (m *Manager) owns(dir string) error {
	clean := filepath.Clean(dir)
	if filepath.Dir(clean) != m.baseDir || !strings.HasPrefix(filepath.Base(clean), DirPrefix) {
		return fmt.Errorf("%q is not a staging directory under %s", dir, m.baseDir)
	}
	return nil
}

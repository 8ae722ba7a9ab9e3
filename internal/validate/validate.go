// Package validate runs the spreadsheet and manifest checks of a submission.
// Both checks always return a list of human-readable problems; an empty list
// means the file is clean.
package validate

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/log"
)

// Spreadsheet checks the sheet at path using the context record recorded
// for its basename in metadataInfo.
func Spreadsheet(imp importer.Importer, path string, metadataInfo map[string]map[string]string) (errs []string) {
	logger := log.WithImporter(imp.Name())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("spreadsheet verification panicked", "file", filepath.Base(path), "panic", r)
			errs = []string{fmt.Sprintf("Verification failed with an error: %v", r)}
		}
	}()

	found, err := imp.ReadSpreadsheet(path, metadataInfo[filepath.Base(path)])
	switch {
	case errors.Is(err, importer.ErrUnreadableSpreadsheet):
		logger.Info("spreadsheet could not be read", "file", filepath.Base(path), "error", err)
		return []string{
			fmt.Sprintf("The provided spreadsheet could not be read: %v", err),
			"Please ensure the spreadsheet is in Microsoft Excel (XLSX) format.",
		}
	case err != nil:
		logger.Warn("spreadsheet verification failed", "file", filepath.Base(path), "error", err)
		return []string{fmt.Sprintf("Verification failed with an error: %v", err)}
	}
	if found == nil {
		found = []string{}
	}
	logger.Info("spreadsheet verified", "file", filepath.Base(path), "errors", len(found))
	return found
}

// Manifest checks every entry of the manifest at path against the importer's
// filename convention.
func Manifest(imp importer.Importer, path string) (errs []string) {
	logger := log.WithImporter(imp.Name())
	defer func() {
		if r := recover(); r != nil {
			logger.Error("manifest verification panicked", "file", filepath.Base(path), "panic", r)
			errs = []string{fmt.Sprintf("Verification failed with an error: %v", r)}
		}
	}()

	res, err := imp.ParseManifest(path)
	if err != nil {
		logger.Warn("manifest verification failed", "file", filepath.Base(path), "error", err)
		return []string{fmt.Sprintf("Verification failed with an error: %v", err)}
	}

	out := make([]string, 0, len(res.NoMatch))
	for _, name := range res.NoMatch {
		out = append(out, fmt.Sprintf("File does not meet convention: `%s'", name))
	}
	logger.Info("manifest verified", "file", filepath.Base(path), "entries", len(res.Entries), "errors", len(out))
	return out
}

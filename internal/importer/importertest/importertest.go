// Package importertest builds workbooks, manifests and catalogue
// directories for tests.
package importertest

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/importer"
)

// Name is the importer id used by Conf.
const Name = "amplicon-16s"

// BaseURL is the base URL recorded for catalogue files.
const BaseURL = "https://downloads.example.org/amplicon"

// Header is the sheet header matching Conf.
var Header = []string{"Sample ID", "Library ID", "Flow ID", "Comments"}

// Conf returns an importer configuration linking resources to packages on
// (sample_id, flow_id). Its catalogue is read from sourceDir.
func Conf(sourceDir string) config.ImporterConf {
	return config.ImporterConf{
		Project:    "base",
		Title:      "BASE Amplicon 16S",
		Omics:      "genomics",
		Technology: "16s",
		DataType:   "base-genomics-amplicon",
		IDField:    "library_id",
		IDPrefix:   "base-16s-",
		Spreadsheet: config.SpreadsheetConf{
			HeaderRow: 1,
			Fields: []config.FieldConf{
				{Name: "sample_id", Column: "Sample ID", Required: true, Pattern: `^\d+$`},
				{Name: "library_id", Column: "Library ID", Required: true},
				{Name: "flow_id", Column: "Flow ID", Required: true, Pattern: `^[A-Z0-9]{5}$`},
				{Name: "comments", Column: "Comments"},
			},
		},
		Manifest: config.ManifestConf{
			Pattern: `^(?P<sample_id>\d+)_(?P<flow_id>[A-Z0-9]{5})_(?P<index>[ACGT]+)_L(?P<lane>\d{3})_R(?P<read>[12])\.fastq\.gz$`,
		},
		Linkage:       []string{"sample_id", "flow_id"},
		ContextFields: []string{"ticket"},
		Source:        config.SourceConf{Type: config.SourceDir, Path: sourceDir},
	}
}

// New returns a Tabular importer for Conf(sourceDir).
func New(t testing.TB, sourceDir, workRoot string) *importer.Tabular {
	t.Helper()
	imp, err := importer.NewTabular(Name, Conf(sourceDir), workRoot)
	if err != nil {
		t.Fatalf("NewTabular: %v", err)
	}
	return imp
}

// Row is one sheet row in Header order.
func Row(sampleID, libraryID, flowID string) []string {
	return []string{sampleID, libraryID, flowID, ""}
}

// WriteWorkbook writes an XLSX file with header on row 1 followed by rows.
func WriteWorkbook(t testing.TB, path string, header []string, rows [][]string) {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(0)
	write := func(rowNum int, values []string) {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		vals := make([]any, len(values))
		for i, v := range values {
			vals[i] = v
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			t.Fatalf("set row %d: %v", rowNum, err)
		}
	}
	write(1, header)
	for i, row := range rows {
		write(i+2, row)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save workbook: %v", err)
	}
}

// ManifestLine renders a GNU md5sum line with a checksum derived from name.
func ManifestLine(name string) string {
	return fmt.Sprintf("%x  %s", md5.Sum([]byte(name)), name)
}

// ReadFile names a FASTQ file following the Conf convention.
func ReadFile(sampleID, flowID string, read int) string {
	return fmt.Sprintf("%s_%s_ACGTACGT_L001_R%d.fastq.gz", sampleID, flowID, read)
}

// WriteManifest writes one md5sum line per file name.
func WriteManifest(t testing.TB, path string, names ...string) {
	t.Helper()
	lines := make([]string, len(names))
	for i, n := range names {
		lines[i] = ManifestLine(n)
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

// AddSpreadsheet writes a submission sheet into a catalogue directory and
// records its context in metadata.json.
func AddSpreadsheet(t testing.TB, dir, name, ticket string, rows [][]string) {
	t.Helper()
	WriteWorkbook(t, filepath.Join(dir, name), Header, rows)
	addContext(t, dir, name, ticket)
}

// AddManifest writes a manifest into a catalogue directory and records its
// context in metadata.json.
func AddManifest(t testing.TB, dir, name, ticket string, files ...string) {
	t.Helper()
	WriteManifest(t, filepath.Join(dir, name), files...)
	addContext(t, dir, name, ticket)
}

func addContext(t testing.TB, dir, name, ticket string) {
	t.Helper()
	info, err := importer.ReadMetadataInfo(dir)
	if err != nil {
		t.Fatalf("read metadata info: %v", err)
	}
	info[name] = map[string]string{importer.BaseURLKey: BaseURL, "ticket": ticket}
	if err := importer.WriteMetadataInfo(dir, info); err != nil {
		t.Fatalf("write metadata info: %v", err)
	}
}

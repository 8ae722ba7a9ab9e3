package validate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/importer/importertest"
	"github.com/bioplatforms/bpaworkflow/internal/importer/mocks"
)

var stagedContext = map[string]string{
	importer.BaseURLKey: "https://example.com/does-not-exist/",
	"ticket":            "BPAOPS-999",
}

func TestSpreadsheetClean(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	path := filepath.Join(dir, "good.xlsx")
	importertest.WriteWorkbook(t, path, importertest.Header, [][]string{importertest.Row("102", "1", "HXXXX")})

	errs := Spreadsheet(imp, path, map[string]map[string]string{"good.xlsx": stagedContext})
	require.NotNil(t, errs)
	assert.Empty(t, errs)
}

func TestSpreadsheetStructuralErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	path := filepath.Join(dir, "bad.xlsx")
	importertest.WriteWorkbook(t, path, importertest.Header, [][]string{importertest.Row("102", "1", "bad")})

	errs := Spreadsheet(imp, path, map[string]map[string]string{"bad.xlsx": stagedContext})
	assert.Equal(t, []string{`row 2: Flow ID value "bad" does not match ^[A-Z0-9]{5}$`}, errs)
}

func TestSpreadsheetUnreadable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	path := filepath.Join(dir, "sheet.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip"), 0o644))

	errs := Spreadsheet(imp, path, map[string]map[string]string{"sheet.xlsx": stagedContext})
	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "The provided spreadsheet could not be read: ")
	assert.Equal(t, "Please ensure the spreadsheet is in Microsoft Excel (XLSX) format.", errs[1])
}

func TestSpreadsheetFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(*mocks.MockImporter)
		want  string
	}{
		{
			name: "error",
			setup: func(m *mocks.MockImporter) {
				m.EXPECT().ReadSpreadsheet(gomock.Any(), gomock.Any()).Return(nil, errors.New("disk on fire"))
			},
			want: "Verification failed with an error: disk on fire",
		},
		{
			name: "panic",
			setup: func(m *mocks.MockImporter) {
				m.EXPECT().ReadSpreadsheet(gomock.Any(), gomock.Any()).DoAndReturn(
					func(string, map[string]string) ([]string, error) { panic("index out of range") })
			},
			want: "Verification failed with an error: index out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			imp := mocks.NewMockImporter(ctrl)
			imp.EXPECT().Name().Return("mock").AnyTimes()
			tt.setup(imp)

			errs := Spreadsheet(imp, "/staged/sheet.xlsx", nil)
			assert.Equal(t, []string{tt.want}, errs)
		})
	}
}

func TestSpreadsheetPassesPlaceholderForBasename(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)
	imp := mocks.NewMockImporter(ctrl)
	imp.EXPECT().Name().Return("mock").AnyTimes()
	imp.EXPECT().ReadSpreadsheet("/staged/dir/sheet.xlsx", stagedContext).Return(nil, nil)

	errs := Spreadsheet(imp, "/staged/dir/sheet.xlsx", map[string]map[string]string{"sheet.xlsx": stagedContext})
	assert.Equal(t, []string{}, errs)
}

func TestManifest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	clean := filepath.Join(dir, "clean.md5")
	importertest.WriteManifest(t, clean, importertest.ReadFile("102", "HXXXX", 1), importertest.ReadFile("102", "HXXXX", 2))
	errs := Manifest(imp, clean)
	require.NotNil(t, errs)
	assert.Empty(t, errs)

	dirty := filepath.Join(dir, "dirty.md5")
	importertest.WriteManifest(t, dirty, importertest.ReadFile("102", "HXXXX", 1), "sample102.fastq.gz", "notes.txt")
	errs = Manifest(imp, dirty)
	assert.Equal(t, []string{
		"File does not meet convention: `sample102.fastq.gz'",
		"File does not meet convention: `notes.txt'",
	}, errs)
}

func TestManifestFailures(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	errs := Manifest(imp, filepath.Join(dir, "missing.md5"))
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "Verification failed with an error: open manifest")

	ctrl := gomock.NewController(t)
	panicky := mocks.NewMockImporter(ctrl)
	panicky.EXPECT().Name().Return("mock").AnyTimes()
	panicky.EXPECT().ParseManifest(gomock.Any()).DoAndReturn(func(string) (*importer.ManifestResult, error) {
		panic(fmt.Errorf("nil regexp"))
	})
	assert.Equal(t, []string{"Verification failed with an error: nil regexp"}, Manifest(panicky, "/x.md5"))
}

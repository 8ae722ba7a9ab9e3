package importer_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/importer"
	"github.com/bioplatforms/bpaworkflow/internal/importer/importertest"
)

func placeholderContext() map[string]string {
	return map[string]string{
		importer.BaseURLKey: "https://example.com/does-not-exist/",
		"ticket":            "BPAOPS-999",
	}
}

func TestNewTabularRejectsBadConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.ImporterConf)
		want   string
	}{
		{
			name:   "bad manifest pattern",
			mutate: func(c *config.ImporterConf) { c.Manifest.Pattern = "(" },
			want:   "manifest.pattern",
		},
		{
			name:   "linkage field not a group",
			mutate: func(c *config.ImporterConf) { c.Linkage = []string{"sample_id", "comments"} },
			want:   "not a named group",
		},
		{
			name:   "linkage field not in sheet",
			mutate: func(c *config.ImporterConf) { c.Linkage = []string{"lane"} },
			want:   "not a spreadsheet field",
		},
		{
			name:   "unknown id field",
			mutate: func(c *config.ImporterConf) { c.IDField = "bogus" },
			want:   "id_field",
		},
		{
			name: "bad field pattern",
			mutate: func(c *config.ImporterConf) {
				c.Spreadsheet.Fields[0].Pattern = "["
			},
			want: "pattern",
		},
		{
			name:   "unknown source",
			mutate: func(c *config.ImporterConf) { c.Source.Type = "ftp" },
			want:   "unsupported source type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := importertest.Conf(t.TempDir())
			tt.mutate(&conf)
			_, err := importer.NewTabular(importertest.Name, conf, t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTabularReadSpreadsheet(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	good := filepath.Join(dir, "good.xlsx")
	importertest.WriteWorkbook(t, good, importertest.Header, [][]string{
		importertest.Row("102", "34567", "HXXXX"),
		{"", "", "", ""},
		importertest.Row("103", "34568", "HYYYY"),
	})
	errs, err := imp.ReadSpreadsheet(good, placeholderContext())
	require.NoError(t, err)
	assert.Empty(t, errs)

	bad := filepath.Join(dir, "bad.xlsx")
	importertest.WriteWorkbook(t, bad, importertest.Header, [][]string{
		importertest.Row("abc", "34567", "HXXXX"),
		importertest.Row("103", "", "HYYYY"),
	})
	errs, err = imp.ReadSpreadsheet(bad, placeholderContext())
	require.NoError(t, err)
	assert.Equal(t, []string{
		`row 2: Sample ID value "abc" does not match ^\d+$`,
		"row 3: Library ID is required",
	}, errs)
}

func TestTabularReadSpreadsheetMissingColumn(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	path := filepath.Join(dir, "short.xlsx")
	importertest.WriteWorkbook(t, path, []string{"Sample ID", "Library ID"}, [][]string{{"102", "34567"}})

	errs, err := imp.ReadSpreadsheet(path, placeholderContext())
	require.NoError(t, err)
	assert.Equal(t, []string{`missing column "Flow ID"`}, errs)
}

func TestTabularReadSpreadsheetUnreadable(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	path := filepath.Join(dir, "not-excel.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("sample_id,flow_id\n102,HXXXX\n"), 0o644))

	_, err := imp.ReadSpreadsheet(path, placeholderContext())
	require.Error(t, err)
	assert.ErrorIs(t, err, importer.ErrUnreadableSpreadsheet)
}

func TestTabularReadSpreadsheetRequiresContext(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	path := filepath.Join(dir, "good.xlsx")
	importertest.WriteWorkbook(t, path, importertest.Header, [][]string{importertest.Row("102", "1", "HXXXX")})

	_, err := imp.ReadSpreadsheet(path, map[string]string{importer.BaseURLKey: "https://x/"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticket")
}

func TestTabularOpenCatalogue(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	importertest.AddSpreadsheet(t, dir, "batch1.xlsx", "BPAOPS-100", [][]string{
		importertest.Row("102", "34567", "HXXXX"),
	})
	importertest.AddManifest(t, dir, "batch1.md5", "BPAOPS-100",
		importertest.ReadFile("102", "HXXXX", 1),
		"README.txt",
	)

	cat, err := imp.Open(dir)
	require.NoError(t, err)
	assert.Equal(t, "base-genomics-amplicon", cat.DataType())
	assert.Equal(t, []string{"sample_id", "flow_id"}, cat.LinkageFields())

	require.Len(t, cat.Packages(), 1)
	pkg := cat.Packages()[0]
	assert.Equal(t, "base-16s-34567", pkg.ID())
	assert.Equal(t, "BPAOPS-100", pkg["ticket"])
	assert.Equal(t, "(102, HXXXX)", importer.KeyOf(pkg, cat.LinkageFields()).String())

	require.Len(t, cat.Resources(), 1)
	res := cat.Resources()[0]
	name := importertest.ReadFile("102", "HXXXX", 1)
	assert.Equal(t, name, res.Record.ID())
	assert.Equal(t, "(102, HXXXX)", res.Key.String())
	assert.Equal(t, importertest.BaseURL+"/BPAOPS-100/"+name, res.Origin)
}

func TestTabularOpenRequiresMetadataInfo(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	imp := importertest.New(t, dir, t.TempDir())

	importertest.WriteWorkbook(t, filepath.Join(dir, "orphan.xlsx"), importertest.Header, nil)

	_, err := imp.Open(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orphan.xlsx")
}

func TestTabularFetchCopiesCatalogue(t *testing.T) {
	t.Parallel()
	source := t.TempDir()
	workRoot := t.TempDir()
	imp := importertest.New(t, source, workRoot)

	importertest.AddManifest(t, source, "batch1.md5", "BPAOPS-100", importertest.ReadFile("102", "HXXXX", 1))
	require.NoError(t, os.Mkdir(filepath.Join(source, "nested"), 0o755))

	dl, err := imp.Fetch(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dl.Dir(), "batch1.md5"))
	assert.FileExists(t, filepath.Join(dl.Dir(), importer.MetadataInfoFile))
	assert.NoDirExists(t, filepath.Join(dl.Dir(), "nested"))

	require.NoError(t, dl.Release())
	assert.NoDirExists(t, dl.Dir())
	require.NoError(t, dl.Release())

	_, err = os.Stat(source)
	require.NoError(t, err, "source directory must be left in place")
}

func TestTabularFetchCancelled(t *testing.T) {
	t.Parallel()
	source := t.TempDir()
	workRoot := t.TempDir()
	imp := importertest.New(t, source, workRoot)
	importertest.AddManifest(t, source, "batch1.md5", "BPAOPS-100")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := imp.Fetch(ctx)
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(workRoot)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

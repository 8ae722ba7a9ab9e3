package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/bioplatforms/bpaworkflow/internal/config"
	"github.com/bioplatforms/bpaworkflow/internal/importer/importertest"
	"github.com/bioplatforms/bpaworkflow/internal/jobstate"
)

type env struct {
	root       string
	configPath string
	catalogue  string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	e := &env{
		root:       root,
		configPath: filepath.Join(root, "config.yaml"),
		catalogue:  filepath.Join(root, "catalogue"),
	}
	require.NoError(t, os.MkdirAll(e.catalogue, 0o755))

	cfg := config.Defaults()
	cfg.Service.LogLevel = "error"
	cfg.State.Path = filepath.Join(root, "state", "state.db")
	cfg.Staging.Dir = filepath.Join(root, "staging")
	cfg.Importers[importertest.Name] = importertest.Conf(e.catalogue)
	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(e.configPath, data, 0o644))

	importertest.AddSpreadsheet(t, e.catalogue, "published.xlsx", "BPAOPS-100", [][]string{
		importertest.Row("102", "30001", "HAAAA"),
	})
	importertest.AddManifest(t, e.catalogue, "published.md5", "BPAOPS-100",
		importertest.ReadFile("102", "HAAAA", 1),
	)
	return e
}

// submission writes a file pair into the env and returns their paths.
func (e *env) submission(t *testing.T, rows [][]string, files ...string) (string, string) {
	t.Helper()
	xlsx := filepath.Join(e.root, "upload.xlsx")
	md5 := filepath.Join(e.root, "upload.md5")
	importertest.WriteWorkbook(t, xlsx, importertest.Header, rows)
	importertest.WriteManifest(t, md5, files...)
	return xlsx, md5
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", e.configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--json"})
	require.NoError(t, cmd.Execute())

	var info versionInfo
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Equal(t, "dev", info.Version)
	assert.NotEmpty(t, info.Commit)
}

func TestNormalizeBuildTimeUTC(t *testing.T) {
	got, ok := normalizeBuildTimeUTC("2026-03-01T10:00:00+10:00")
	assert.True(t, ok)
	assert.Equal(t, "2026-03-01T00:00:00Z", got)

	_, ok = normalizeBuildTimeUTC("unknown")
	assert.False(t, ok)
	_, ok = normalizeBuildTimeUTC("yesterday")
	assert.False(t, ok)

	assert.Equal(t, "0123456789ab", shortenCommit("0123456789abcdef"))
	assert.Equal(t, "abc", shortenCommit("abc"))
}

func TestImportersCommand(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "importers")
	require.NoError(t, err)
	assert.Contains(t, out, "SLUG")
	assert.Contains(t, out, importertest.Name)
	assert.Contains(t, out, "base-genomics-amplicon")

	out, err = e.run(t, "importers", "--json")
	require.NoError(t, err)
	var infos []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	require.Len(t, infos, 1)
	assert.Equal(t, importertest.Name, infos[0]["slug"])
}

func TestValidateCleanSubmission(t *testing.T) {
	e := newEnv(t)
	xlsx, md5 := e.submission(t,
		[][]string{importertest.Row("102", "30001", "HAAAA")},
		importertest.ReadFile("102", "HAAAA", 1),
	)

	out, err := e.run(t, "validate", "-i", importertest.Name, xlsx, md5)
	require.NoError(t, err, out)
	assert.Contains(t, out, "State:      complete")
	assert.Contains(t, out, "xlsx: ok")
	assert.Contains(t, out, "md5:  ok")
	assert.Contains(t, out, "diff: ok")
}

func TestValidateReportsFindingsAndStatusLocal(t *testing.T) {
	e := newEnv(t)
	xlsx, md5 := e.submission(t,
		[][]string{importertest.Row("104", "30003", "HCCCC")},
		importertest.ReadFile("105", "HDDDD", 1),
	)

	out, err := e.run(t, "validate", "--json", "-i", importertest.Name, xlsx, md5)
	require.ErrorIs(t, err, errFindings)

	// The JSON document precedes cobra's error line.
	var st jobstate.Status
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&st))
	assert.True(t, st.Complete)
	diff, ok := st.Diff.Items()
	require.True(t, ok)
	require.Len(t, diff, 2)
	assert.Contains(t, diff[0], "dangling resource")

	out, err = e.run(t, "status", "--local", st.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Submission: "+st.ID)
	assert.Contains(t, out, "diff: 2 message(s)")
	assert.Contains(t, out, "package has no linked resources")

	out, err = e.run(t, "inspect", st.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "Submission  : "+st.ID)
	assert.Contains(t, out, "State       : complete")
	// Offline runs drive the stages in-process without the stage queue.
	assert.Contains(t, out, "No stage tasks recorded.")
	assert.Contains(t, out, "Results     : xlsx=ok md5=ok diff=2")
}

func TestValidateUnknownImporter(t *testing.T) {
	e := newEnv(t)
	xlsx, md5 := e.submission(t, [][]string{importertest.Row("102", "30001", "HAAAA")})

	_, err := e.run(t, "validate", "-i", "nope", xlsx, md5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown importer")
}

func TestValidateRequiresImporterFlag(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "validate", "a.xlsx", "b.md5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "importer")
}

func TestStatusLocalUnknown(t *testing.T) {
	e := newEnv(t)
	_, err := e.run(t, "status", "--local", "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, jobstate.ErrJobNotFound)
}

func TestStagingCleanup(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "staging", "cleanup", "--older-than", "1h")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 0 director(ies) older than 1h0m0s")
}

func TestConfigCheck(t *testing.T) {
	e := newEnv(t)

	out, err := e.run(t, "config", "check")
	require.NoError(t, err)
	assert.Contains(t, out, "OK")
	assert.Contains(t, out, "Importers: 1")

	hash, err := config.ComputeBlake3Hash(e.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, hash)

	_, err = e.run(t, "config", "check", "--expect-hash", hash)
	assert.NoError(t, err)

	_, err = e.run(t, "config", "check", "--expect-hash", strings.Repeat("0", 64))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestConfigCheckReportsDoctorErrors(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, os.RemoveAll(e.catalogue))

	out, err := e.run(t, "config", "check")
	require.ErrorIs(t, err, errInvalidConfig)
	assert.Contains(t, out, "Configuration invalid")
	assert.Contains(t, out, "ERROR [sources]")
	assert.NotContains(t, out, "OK\n")

	out, err = e.run(t, "config", "check", "--json")
	require.ErrorIs(t, err, errInvalidConfig)
	var result map[string]any
	require.NoError(t, json.NewDecoder(strings.NewReader(out)).Decode(&result))
	assert.Equal(t, false, result["valid"])
}

func TestWriteStatusPending(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, writeStatus(&out, jobstate.Status{
		ID:       "job-1",
		Importer: importertest.Name,
		XLSX:     jobstate.List([]string{"row 2: bad sample"}),
		Diff:     jobstate.Placeholder("please wait..."),
	}, false))

	text := out.String()
	assert.Contains(t, text, "State:      in progress")
	assert.Contains(t, text, "xlsx: 1 message(s)\n  - row 2: bad sample")
	assert.Contains(t, text, "md5:  pending")
	assert.Contains(t, text, "diff: please wait...")
}

func TestHasFindings(t *testing.T) {
	assert.False(t, hasFindings(jobstate.Status{XLSX: jobstate.List(nil), MD5: jobstate.List(nil), Diff: jobstate.List(nil)}))
	assert.True(t, hasFindings(jobstate.Status{MD5: jobstate.List([]string{"x"})}))
	assert.True(t, hasFindings(jobstate.Status{Error: "disk full"}))
}

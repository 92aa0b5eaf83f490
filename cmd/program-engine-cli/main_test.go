package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/program-engine/internal/ingest"
	"github.com/spherical-ai/spherical/libs/program-engine/internal/storage"
)

const programCSV = "Date,Time,Topic,Hall,Name,Role\n" +
	"01/03/2024,9:00 AM - 10:00 AM,Opening Keynote,Hall A,Dr. Smith,Speaker\n" +
	"01/03/2024,10:00 AM - 10:30 AM,Coffee Break,Hall A,,\n" +
	"01/03/2024,10:30 AM - 11:30 AM,Heart Failure,Hall A,Dr. Smith,Speaker\n" +
	"01/03/2024,10:30 AM - 11:30 AM,Heart Failure,Hall A,Dr. Jones,Moderator\n"

type cliEnv struct {
	dir     string
	cfgPath string
	csvPath string
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgYAML := "database:\n  driver: sqlite\n  sqlite:\n    path: " + filepath.Join(dir, "cli.db") + "\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o600))

	csvPath := filepath.Join(dir, "program.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(programCSV), 0o600))

	return &cliEnv{dir: dir, cfgPath: cfgPath, csvPath: csvPath}
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--config", e.cfgPath, "--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "program-engine-cli v"+Version+"\n", out)

	out, err = env.run(t, "version", "--json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":"`+Version+`"}`, out)
}

func TestAnalyze_JSON(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "analyze", "--file", env.csvPath, "--json")
	require.NoError(t, err)

	var result ingest.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.True(t, result.DryRun)
	assert.Equal(t, 3, result.Sessions)
	assert.Equal(t, 2, result.Faculty)
	assert.Zero(t, result.IssuesTotal)
	require.Len(t, result.Summary.Days, 1)
	assert.Equal(t, "2024-03-01", result.Summary.Days[0].Date)

	_, err = os.Stat(filepath.Join(env.dir, "cli.db"))
	assert.True(t, os.IsNotExist(err), "analyze must not touch the database")
}

func TestAnalyze_TextReport(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "analyze", "-f", env.csvPath)
	require.NoError(t, err)
	assert.Contains(t, out, "ANALYSIS (DRY RUN)")
	assert.Contains(t, out, "| Dr. Smith")
	assert.Contains(t, out, "✓ No scheduling issues found")
	assert.NotContains(t, out, "Import completed")
}

func TestImport_ThenSessionsAndReimport(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "import", "--event", "Cardiology Summit 2024", "--file", env.csvPath, "--operator", "ops")
	require.NoError(t, err)
	assert.Contains(t, out, "3 new, 0 already stored")
	assert.Contains(t, out, "✓ Import completed")

	out, err = env.run(t, "sessions", "--event", "cardiology   summit 2024", "--json")
	require.NoError(t, err)
	var sessions []storage.SessionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &sessions))
	require.Len(t, sessions, 3)
	assert.Equal(t, "Opening Keynote", sessions[0].Topic)
	assert.Equal(t, "09:00", sessions[0].Start)

	out, err = env.run(t, "import", "--event", "Cardiology Summit 2024", "--file", env.csvPath, "--json")
	require.NoError(t, err)
	var result ingest.Result
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 0, result.Counts.SessionsCreated)
	assert.Equal(t, 3, result.Counts.SessionsExisting)

	out, err = env.run(t, "sessions", "--event", "Cardiology Summit 2024")
	require.NoError(t, err)
	assert.Contains(t, out, "Heart Failure")
	assert.Contains(t, out, "✓ 3 sessions")
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "import", "--event", "demo", "--file", env.csvPath, "--dry-run")
	require.NoError(t, err)

	out, err := env.run(t, "sessions", "--event", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "No sessions stored")
}

func TestImport_Errors(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "import", "--file", env.csvPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"event" not set`)

	_, err = env.run(t, "import", "--event", "demo", "--file", filepath.Join(env.dir, "missing.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read program file")

	bad := filepath.Join(env.dir, "people.csv")
	require.NoError(t, os.WriteFile(bad, []byte("Name,Email\nDr. A,a@x.com\n"), 0o600))
	_, err = env.run(t, "import", "--event", "demo", "--file", bad)
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrNoSchedulableColumns)
}

func TestMigrate(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "Applied 0001_init_sqlite.sql")

	out, err = env.run(t, "migrate", "--json")
	require.NoError(t, err)
	var status storage.MigrationStatus
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Empty(t, status.Applied)
	assert.Equal(t, 1, status.Total)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2<<20))
}

package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/arena/internal/history"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "arena.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func offlineConfig(dir string, historyOn bool) string {
	return `
run:
  workspace_root: ` + filepath.Join(dir, "run") + `
reasoning:
  provider: none
runtime:
  kind: none
coordination:
  enabled: false
deploy:
  enabled: false
history:
  enabled: ` + map[bool]string{true: "true", false: "false"}[historyOn] + `
  path: ` + filepath.Join(dir, "history.db") + `
logging:
  level: error
`
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := GetRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	t.Cleanup(func() {
		root.SetArgs(nil)
		cfgFile, debug, quiet = "", false, false
	})
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "arena version "+Version)
}

func TestTiersCommand(t *testing.T) {
	out, err := execute(t, "tiers")
	require.NoError(t, err)
	for _, want := range []string{"light", "medium", "high", "ultra", "worker-1", "worker-8", "rapid-prototyper"} {
		assert.Contains(t, out, want)
	}
}

func TestRunOverrides(t *testing.T) {
	require.NoError(t, runCmd.Flags().Parse([]string{"--tier", "high", "--tech", "react,go", "--serve", "30s"}))
	got := runOverrides(runCmd)

	assert.Equal(t, "high", got["run.tier"])
	assert.Equal(t, "react,go", got["run.technologies"])
	assert.Equal(t, "30s", got["deploy.serve_for"])
	assert.NotContains(t, got, "run.workers")
	assert.NotContains(t, got, "run.max_execution")
}

func TestRunRejectsUnknownTier(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, offlineConfig(dir, false))

	_, err := execute(t, "run", "--config", cfg, "-q", "--tier", "galactic", "build", "a", "todo", "app")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration error: tier")
	assert.NoDirExists(t, filepath.Join(dir, "run"))
}

func TestRunRequiresPrompt(t *testing.T) {
	_, err := execute(t, "run")
	assert.Error(t, err)
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, offlineConfig(dir, true))

	store, err := history.Open(context.Background(), filepath.Join(dir, "history.db"))
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), history.Record{
		ID:        "run-abc",
		StartedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Tier:      "light",
		Prompt:    "build a todo app",
		Winner:    "worker-2",
		Status:    "completed",
		Elapsed:   90 * time.Second,
		Report:    []byte(`{"run_id":"run-abc"}`),
	}))
	require.NoError(t, store.Close())

	out, err := execute(t, "history", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "run-abc")
	assert.Contains(t, out, "worker-2")
	assert.Contains(t, out, "1m30s")

	out, err = execute(t, "history", "show", "run-abc", "--config", cfg)
	require.NoError(t, err)
	assert.Contains(t, out, `"run_id": "run-abc"`)

	_, err = execute(t, "history", "show", "missing", "--config", cfg)
	assert.ErrorIs(t, err, history.ErrNotFound)
}

func TestHistoryDisabled(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, offlineConfig(dir, false))

	_, err := execute(t, "history", "--config", cfg)
	assert.Error(t, err)
}

func TestPrintHistoryEmpty(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	assert.Contains(t, buf.String(), "暂无运行记录")
}

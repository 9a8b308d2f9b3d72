package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const harnessScenarios = "../harness/testdata/scenarios"

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	for _, name := range []string{"update", "filter", "golden"} {
		assert.NotNil(t, runCmd.Flags().Lookup(name), "flag %s", name)
	}
}

// The harness scenarios pass and match their golden snapshots.
func TestRun_HarnessScenarios(t *testing.T) {
	out, _, err := execute(t, "run", harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ insert_between")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestRun_Filter(t *testing.T) {
	out, _, err := execute(t, "run", harnessScenarios, "--filter", "insert_*", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"total": 1`)
	assert.Contains(t, out, `"name": "insert_between"`)
}

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, "scenarios", name+".yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

const appendScenario = `
name: append
description: "append to an empty sequence"
steps:
  - op: insert
assertions:
  - type: order
    ids: [seg-0001]
`

func TestRun_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "append", appendScenario)

	out, _, err := execute(t, "run", path, "--update")
	require.NoError(t, err, out)

	golden := filepath.Join(dir, "golden", "append.golden")
	data, err := os.ReadFile(golden)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"seg-0001@1000(local)"`)

	_, _, err = execute(t, "run", path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(golden, []byte("{}\n"), 0644))
	out, _, err = execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "trace does not match golden file")
}

func TestRun_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "wrong", `
name: wrong
description: "expects the wrong order"
local:
  - { id: a, key: 1000 }
steps:
  - op: insert
    index: 0
assertions:
  - type: order
    ids: [a, seg-0001]
`)

	out, _, err := execute(t, "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ wrong")
	assert.Contains(t, out, "1 failed")
}

func TestRun_LoadError(t *testing.T) {
	dir := t.TempDir()
	path := writeScenario(t, dir, "broken", "name: broken\n")

	out, _, err := execute(t, "run", path, "--format", "json")
	require.Error(t, err)
	assert.Contains(t, out, "failed to load scenario")
	assert.Contains(t, out, "E_SCENARIO_FAILED")
}

func TestRun_MissingPath(t *testing.T) {
	_, _, err := execute(t, "run", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRun_EmptyDir(t *testing.T) {
	out, _, err := execute(t, "run", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

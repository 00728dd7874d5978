package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: single_widget
description: One widget is recorded once.
entities:
  - name: widget
steps:
  - upsert:
      entity: widget
      observations:
        - {logical_id: w1, definition: {color: red}}
assertions:
  - {type: log_count, entity: widget, count: 1}
`

const failingScenario = `name: wrong_count
description: Expects a row that is never written.
entities:
  - name: widget
steps:
  - sweep: {entity: widget, observed: []}
assertions:
  - {type: log_count, entity: widget, count: 1}
`

func TestTestCommand_HarnessScenarios(t *testing.T) {
	dir := filepath.Join("..", "harness", "testdata", "scenarios")

	out, err := execute(t, "--format", "json", "test", dir)
	require.NoError(t, err, out)

	var resp struct {
		Status string     `json:"status"`
		Data   TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 3, resp.Data.Passed)
}

func TestTestCommand_NonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_EmptyScenariosDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_FailureExitCode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "single_widget.yaml", passingScenario)
	writeFile(t, dir, "wrong_count.yaml", failingScenario)

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✓ single_widget")
	assert.Contains(t, out, "✗ wrong_count")
	assert.Contains(t, out, "Test Summary: 1 passed, 1 failed, 2 total")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "single_widget.yaml", passingScenario)
	writeFile(t, dir, "wrong_count.yaml", failingScenario)

	out, err := execute(t, "test", dir, "--filter", "single_*")
	require.NoError(t, err)
	assert.Contains(t, out, "Test Summary: 1 passed, 0 failed, 1 total")
}

func TestTestCommand_UpdateThenCompare(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "single_widget.yaml", passingScenario)

	out, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "(golden updated)")

	golden, err := os.ReadFile(filepath.Join(dir, "golden", "single_widget.golden"))
	require.NoError(t, err)
	assert.Contains(t, string(golden), `"scenario_name":"single_widget"`)

	_, err = execute(t, "test", dir)
	require.NoError(t, err)

	// A stale golden file fails the scenario.
	writeFile(t, filepath.Join(dir, "golden"), "single_widget.golden", `{"scenario_name":"single_widget","trace":[]}`)
	out, err = execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "trace does not match golden file")
}

func TestTestCommand_LoadError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "broken.yaml", "name: broken\nflow: []\n")

	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Contains(t, out, "✗ broken.yaml")
	assert.Contains(t, out, "failed to load scenario")
}

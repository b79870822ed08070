package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../../testdata/scenarios"

// copyScenarios copies the repository scenarios into a scratch directory
// so golden files can be rewritten.
func copyScenarios(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	processes := filepath.Join(dir, "processes")
	scenarios := filepath.Join(dir, "scenarios")
	require.NoError(t, os.MkdirAll(processes, 0o755))
	require.NoError(t, os.MkdirAll(scenarios, 0o755))

	data, err := os.ReadFile(oneTaskFile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(processes, "one_task_process.yaml"), data, 0o644))

	for _, name := range []string{"one_task_process.yaml", "task_completed_twice.yaml"} {
		data, err := os.ReadFile(filepath.Join(scenariosDir, name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(scenarios, name), data, 0o644))
	}
	return scenarios
}

func TestTestCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommand_NonExistentDir(t *testing.T) {
	_, err := execute(t, "test", "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommand_EmptyDir(t *testing.T) {
	out, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found")

	resp, err := executeJSON(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
}

func TestTestCommand_RepositoryScenarios(t *testing.T) {
	out, err := execute(t, "test", scenariosDir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ one_task_process")
	assert.Contains(t, out, "✓ task_completed_twice")
	assert.Contains(t, out, "Test Summary: 2 passed, 0 failed, 2 total")
}

func TestTestCommand_Filter(t *testing.T) {
	out, err := execute(t, "test", scenariosDir, "--filter", "task_*", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Data TestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Total)
	require.Len(t, resp.Data.Scenarios, 1)
	assert.Equal(t, "task_completed_twice", resp.Data.Scenarios[0].Name)
}

func TestTestCommand_UpdateAndMismatch(t *testing.T) {
	dir := copyScenarios(t)

	_, err := execute(t, "test", dir, "--update")
	require.NoError(t, err)

	want, err := os.ReadFile(filepath.Join(scenariosDir, "golden", "one_task_process.golden"))
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(dir, "golden", "one_task_process.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "golden", "one_task_process.golden"), []byte("{}"), 0o644))
	out, err := execute(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ one_task_process")
	assert.Contains(t, out, "trace does not match golden file")
}

func TestFindScenarioFiles_SkipsGolden(t *testing.T) {
	files, err := findScenarioFiles(scenariosDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, f := range files {
		assert.NotContains(t, f, string(filepath.Separator)+"golden"+string(filepath.Separator))
	}

	_, err = findScenarioFiles(scenariosDir, "[")
	require.Error(t, err)
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t, filepath.Join("a", "b", "golden", "x.golden"), goldenFilePath(filepath.Join("a", "b", "x.yaml")))
}

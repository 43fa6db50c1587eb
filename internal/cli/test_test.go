package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: open-and-resolve
description: entity opens and resolves
events:
  - event_id: e-1
    event_type: lane.opened
    aggregate_id: task-1
    node_id: node-a
    lamport_clock: 1
  - event_id: e-2
    event_type: lane.transition
    aggregate_id: task-1
    node_id: node-a
    lamport_clock: 2
    payload:
      to: resolved
expect:
  lane: resolved
  transition_count: 2
`

const failingScenario = `name: wrong-expectation
description: expectations deliberately disagree with the projection
events:
  - event_id: e-1
    event_type: lane.opened
    aggregate_id: task-1
    node_id: node-a
    lamport_clock: 1
expect:
  lane: done
`

func writeScenarioDir(t *testing.T, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range scenarios {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	return dir
}

func TestTestCommand_AllPass(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{"open.yaml": passingScenario})

	out, err := execRoot(t, "test", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "PASS  open-and-resolve")
	assert.Contains(t, out, "1/1 passed")
}

func TestTestCommand_FailureExitsOne(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"open.yaml":  passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execRoot(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "FAIL  wrong-expectation")
	assert.Contains(t, out, "1/2 passed")
}

func TestTestCommand_Filter(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{
		"open.yaml":  passingScenario,
		"wrong.yaml": failingScenario,
	})

	out, err := execRoot(t, "test", dir, "--filter", "open-*")
	require.NoError(t, err)
	assert.Contains(t, out, "1/1 passed")
}

func TestTestCommand_JSONFormat(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{"open.yaml": passingScenario})

	out, err := execRoot(t, "test", dir, "--format", "json")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestTestCommand_MissingDirExitsTwo(t *testing.T) {
	_, err := execRoot(t, "test", "/definitely/not/here")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommand_MalformedScenarioExitsTwo(t *testing.T) {
	dir := writeScenarioDir(t, map[string]string{"bad.yaml": "name: only-a-name\n"})

	_, err := execRoot(t, "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

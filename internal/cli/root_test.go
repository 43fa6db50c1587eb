package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlog/weft/internal/clock"
)

// execRoot runs the full command tree the way main does, capturing
// combined output.
func execRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, err := NewRootCommand()
	require.NoError(t, err)

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	execErr := root.Execute()
	return buf.String(), execErr
}

const cleanLog = `[
	{"event_id":"e-1","event_type":"lane.opened","aggregate_id":"task-1",
	 "timestamp":"2026-01-02T03:04:05Z","node_id":"node-a","lamport_clock":1,
	 "payload":{"actor":"maya","labels":["backend"]}},
	{"event_id":"e-2","event_type":"lane.transition","aggregate_id":"task-1",
	 "timestamp":"2026-01-02T03:04:06Z","node_id":"node-a","lamport_clock":2,
	 "payload":{"to":"resolved"}},
	{"event_id":"e-3","event_type":"lane.transition","aggregate_id":"task-1",
	 "timestamp":"2026-01-02T03:04:07Z","node_id":"node-a","lamport_clock":3,
	 "payload":{"to":"done"}}
]`

const skippedEntryLog = `[
	{"event_id":"x-1","event_type":"lane.transition","aggregate_id":"task-3",
	 "timestamp":"2026-01-02T03:04:05Z","node_id":"node-a","lamport_clock":1,
	 "payload":{"to":"discussing"}}
]`

func TestReduceCommand_CleanLog(t *testing.T) {
	path := writeFile(t, "log.json", cleanLog)

	out, err := execRoot(t, "reduce", path)
	require.NoError(t, err)
	assert.Contains(t, out, "lane:        done")
	assert.Contains(t, out, "reopens:     0")
	assert.Contains(t, out, "labels:      [backend]")
}

func TestReduceCommand_JSONFormat(t *testing.T) {
	path := writeFile(t, "log.json", cleanLog)

	out, err := execRoot(t, "reduce", path, "--format", "json")
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestReduceCommand_StrictAbortExitsOne(t *testing.T) {
	path := writeFile(t, "log.json", skippedEntryLog)

	out, err := execRoot(t, "reduce", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "x-1")
}

func TestReduceCommand_PermissiveAnomaliesExitOne(t *testing.T) {
	path := writeFile(t, "log.json", skippedEntryLog)

	out, err := execRoot(t, "reduce", path, "--mode", "permissive")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	// Permissive still renders the claimed lane.
	assert.Contains(t, out, "lane:        discussing")
	assert.Contains(t, out, "anomaly:")
}

func TestReduceCommand_ModeFromEnvironment(t *testing.T) {
	t.Setenv("WEFT_MODE", "permissive")
	path := writeFile(t, "log.json", skippedEntryLog)

	out, err := execRoot(t, "reduce", path)
	require.Error(t, err)
	assert.Contains(t, out, "lane:        discussing")
}

func TestReduceCommand_BadPathExitsTwo(t *testing.T) {
	_, err := execRoot(t, "reduce", "/definitely/not/here.json")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReduceCommand_ClockCheckpoint(t *testing.T) {
	path := writeFile(t, "log.json", cleanLog)
	db := writeFile(t, "clock.db", "")

	_, err := execRoot(t, "reduce", path, "--clock-db", db, "--node-id", "reader-1")
	require.NoError(t, err)

	storage, err := clock.OpenSQLite(db)
	require.NoError(t, err)
	defer storage.Close()

	value, err := storage.Load("reader-1")
	require.NoError(t, err)
	// Three observed clocks, max 3, so the counter moved past 3.
	assert.Greater(t, value, uint64(3))
}

func TestValidateCommand(t *testing.T) {
	t.Run("clean log", func(t *testing.T) {
		path := writeFile(t, "log.json", cleanLog)
		out, err := execRoot(t, "validate", path)
		require.NoError(t, err)
		assert.Contains(t, out, "no violations")
	})

	t.Run("violating log exits one", func(t *testing.T) {
		path := writeFile(t, "log.json", skippedEntryLog)
		out, err := execRoot(t, "validate", path)
		require.Error(t, err)
		assert.Equal(t, ExitFailure, GetExitCode(err))
		assert.Contains(t, out, "illegal_transition")
	})
}

func TestSchemaCommand(t *testing.T) {
	t.Run("lists types", func(t *testing.T) {
		out, err := execRoot(t, "schema")
		require.NoError(t, err)
		assert.Contains(t, out, "lane.opened")
		assert.Contains(t, out, "lane.transition")
		assert.Contains(t, out, "lane.rollback")
	})

	t.Run("prints one shape", func(t *testing.T) {
		out, err := execRoot(t, "schema", "lane.transition")
		require.NoError(t, err)
		assert.Contains(t, out, "to")
	})

	t.Run("unknown type exits two", func(t *testing.T) {
		_, err := execRoot(t, "schema", "no.such.type")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})
}

func TestRootCommand_RejectsBadFormat(t *testing.T) {
	_, err := execRoot(t, "schema", "--format", "xml")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execRoot(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "weft ")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitFailure, GetExitCode(NewExitError(ExitFailure, "x")))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError,
		GetExitCode(fmt.Errorf("wrapped: %w", NewExitError(ExitCommandError, "x"))))
}

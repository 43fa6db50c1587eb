package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadEvents_JSON(t *testing.T) {
	path := writeFile(t, "log.json", `[
		{"event_id":"e-1","event_type":"lane.opened","aggregate_id":"task-1",
		 "timestamp":"2026-01-02T03:04:05Z","node_id":"node-a","lamport_clock":1,
		 "payload":{"actor":"maya"}},
		{"event_id":"e-2","event_type":"lane.transition","aggregate_id":"task-1",
		 "timestamp":"2026-01-02T03:04:06Z","node_id":"node-a","lamport_clock":2,
		 "causation_id":"e-1","payload":{"to":"discussing"}}
	]`)

	events, err := LoadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "e-1", events[0].EventID)
	assert.Equal(t, uint64(2), events[1].LamportClock)
	assert.Equal(t, "e-1", events[1].CausationID)
	assert.Equal(t, "maya", events[0].Payload["actor"])
}

func TestLoadEvents_YAML(t *testing.T) {
	path := writeFile(t, "log.yaml", `
- event_id: e-1
  event_type: lane.opened
  aggregate_id: task-1
  timestamp: 2026-01-02T03:04:05Z
  node_id: node-a
  lamport_clock: 1
`)

	events, err := LoadEvents(path)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "lane.opened", events[0].EventType)
}

func TestLoadEvents_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "unsupported extension",
			file:    "log.txt",
			content: "[]",
		},
		{
			name:    "malformed json",
			file:    "log.json",
			content: "{not an array",
		},
		{
			name: "bad timestamp",
			file: "log.json",
			content: `[{"event_id":"e-1","event_type":"lane.opened","aggregate_id":"a",
				"timestamp":"soon","node_id":"n","lamport_clock":1}]`,
		},
		{
			name: "missing envelope field",
			file: "log.json",
			content: `[{"event_id":"e-1","event_type":"lane.opened",
				"timestamp":"2026-01-02T03:04:05Z","node_id":"n","lamport_clock":1}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadEvents(writeFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadEvents_MissingFile(t *testing.T) {
	_, err := LoadEvents(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

package crdt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlog/weft/internal/event"
)

var baseTime = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func mkEvent(t *testing.T, id, node string, clock uint64, payload map[string]any) event.Event {
	t.Helper()
	evt, err := event.New(id, "lane.transition", "task-1", node, clock, baseTime, payload)
	require.NoError(t, err)
	return evt
}

// permutations returns every ordering of events - small inputs only.
func permutations(events []event.Event) [][]event.Event {
	if len(events) <= 1 {
		return [][]event.Event{append([]event.Event(nil), events...)}
	}
	var out [][]event.Event
	for i := range events {
		rest := make([]event.Event, 0, len(events)-1)
		rest = append(rest, events[:i]...)
		rest = append(rest, events[i+1:]...)
		for _, perm := range permutations(rest) {
			out = append(out, append([]event.Event{events[i]}, perm...))
		}
	}
	return out
}

func TestGrowOnlySet_OrderIndependent(t *testing.T) {
	events := []event.Event{
		mkEvent(t, "e-1", "node-a", 1, map[string]any{"labels": []any{"urgent", "backend"}}),
		mkEvent(t, "e-2", "node-b", 1, map[string]any{"labels": "urgent"}),
		mkEvent(t, "e-3", "node-a", 2, map[string]any{"labels": []any{"triaged"}}),
	}
	want := map[string]struct{}{"urgent": {}, "backend": {}, "triaged": {}}

	for _, perm := range permutations(events) {
		got := GrowOnlySet(perm, StringSetField("labels"))
		assert.Equal(t, want, got)
	}
}

func TestGrowOnlySet_Idempotent(t *testing.T) {
	events := []event.Event{
		mkEvent(t, "e-1", "node-a", 1, map[string]any{"labels": "urgent"}),
	}
	// Merging the same event repeatedly changes nothing.
	doubled := append(append([]event.Event{}, events...), events...)
	assert.Equal(t,
		GrowOnlySet(events, StringSetField("labels")),
		GrowOnlySet(doubled, StringSetField("labels")))
}

func TestGrowOnlySet_NeverRemoves(t *testing.T) {
	events := []event.Event{
		mkEvent(t, "e-1", "node-a", 1, map[string]any{"labels": "urgent"}),
		mkEvent(t, "e-2", "node-b", 2, map[string]any{"labels": []any{}}),
	}
	got := GrowOnlySet(events, StringSetField("labels"))
	assert.Contains(t, got, "urgent")
}

func TestCounter_OrderIndependent(t *testing.T) {
	events := []event.Event{
		mkEvent(t, "e-1", "node-a", 1, map[string]any{"delta": int64(5)}),
		mkEvent(t, "e-2", "node-b", 1, map[string]any{"delta": int64(-2)}),
		mkEvent(t, "e-3", "node-a", 2, map[string]any{"delta": int64(7)}),
	}
	delta := func(evt event.Event) int64 {
		switch v := evt.Payload["delta"].(type) {
		case int64:
			return v
		case float64:
			return int64(v)
		default:
			return 0
		}
	}

	for _, perm := range permutations(events) {
		assert.Equal(t, int64(10), Counter(perm, delta))
	}
}

func stateField(evt event.Event) string {
	s, _ := evt.Payload["to"].(string)
	return s
}

func TestStateMachine_PriorityWins(t *testing.T) {
	priorities := map[string]int{"canceled": 3, "blocked": 2, "resolved": 1}
	events := []event.Event{
		mkEvent(t, "e-1", "node-a", 5, map[string]any{"to": "resolved"}),
		mkEvent(t, "e-2", "node-b", 5, map[string]any{"to": "canceled"}),
	}

	for _, perm := range permutations(events) {
		res, err := StateMachine(perm, priorities, stateField)
		require.NoError(t, err)
		assert.Equal(t, "e-2", res.Winner.EventID, "highest priority state wins regardless of order")
		assert.Equal(t, "e-2", res.Key.EventID, "resolution records the deciding key")
	}
}

func TestStateMachine_TieBreaksByTotalOrder(t *testing.T) {
	priorities := map[string]int{"resolved": 1}
	events := []event.Event{
		mkEvent(t, "e-1", "node-a", 5, map[string]any{"to": "resolved"}),
		mkEvent(t, "e-2", "node-b", 5, map[string]any{"to": "resolved"}),
	}

	for _, perm := range permutations(events) {
		res, err := StateMachine(perm, priorities, stateField)
		require.NoError(t, err)
		assert.Equal(t, "e-2", res.Winner.EventID, "highest total-order key is the final write")
	}
}

func TestStateMachine_MappedBeatsUnmapped(t *testing.T) {
	priorities := map[string]int{"blocked": 1}
	events := []event.Event{
		mkEvent(t, "e-9", "node-a", 5, map[string]any{"to": "mystery"}),
		mkEvent(t, "e-1", "node-b", 5, map[string]any{"to": "blocked"}),
	}

	for _, perm := range permutations(events) {
		res, err := StateMachine(perm, priorities, stateField)
		require.NoError(t, err)
		assert.Equal(t, "e-1", res.Winner.EventID)
	}
}

func TestStateMachine_EmptyInput(t *testing.T) {
	_, err := StateMachine(nil, nil, stateField)
	require.Error(t, err)
}

package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_DeterministicAcrossRuns(t *testing.T) {
	mintAll := func() []string {
		b := NewBuilder()
		var hashes []string
		for i := 0; i < 3; i++ {
			evt := b.Mint("lane.transition", "task-1", "node-a", map[string]any{"to": "discussing"})
			h, err := evt.ContentHash()
			require.NoError(t, err)
			hashes = append(hashes, h)
		}
		return hashes
	}

	assert.Equal(t, mintAll(), mintAll())
}

func TestBuilder_SequentialIDsAndTimestamps(t *testing.T) {
	b := NewBuilder()

	e1 := b.Mint("lane.opened", "task-1", "node-a", nil)
	e2 := b.Mint("lane.transition", "task-1", "node-a", map[string]any{"to": "discussing"})

	assert.Equal(t, "evt-000001", e1.EventID)
	assert.Equal(t, "evt-000002", e2.EventID)
	assert.Equal(t, time.Millisecond, e2.Timestamp.Sub(e1.Timestamp))
	assert.True(t, e1.Timestamp.Before(e2.Timestamp))
}

func TestBuilder_PerNodeClocks(t *testing.T) {
	b := NewBuilder()

	a1 := b.Mint("lane.opened", "task-1", "node-a", nil)
	a2 := b.Mint("lane.transition", "task-1", "node-a", map[string]any{"to": "discussing"})
	b1 := b.Mint("lane.transition", "task-1", "node-b", map[string]any{"to": "resolved"})

	assert.Equal(t, uint64(1), a1.LamportClock)
	assert.Equal(t, uint64(2), a2.LamportClock)
	// node-b has not observed node-a, so its clock starts fresh.
	assert.Equal(t, uint64(1), b1.LamportClock)
}

func TestBuilder_MintAtStagesConcurrency(t *testing.T) {
	b := NewBuilder()

	e1 := b.MintAt(5, "lane.transition", "task-1", "node-a", map[string]any{"to": "done"})
	e2 := b.MintAt(5, "lane.transition", "task-1", "node-b", map[string]any{"to": "canceled"})

	assert.Equal(t, e1.LamportClock, e2.LamportClock)
	assert.NotEqual(t, e1.NodeID, e2.NodeID)

	// Later organic mints on node-a continue past the staged value:
	// the staged event was node-a's own write at 5, so the next tick
	// is 6, not 7.
	e3 := b.Mint("lane.transition", "task-1", "node-a", map[string]any{"to": "done"})
	assert.Equal(t, uint64(6), e3.LamportClock)

	// A stale staged value never rewinds the clock.
	e4 := b.MintAt(2, "lane.transition", "task-1", "node-a", map[string]any{"to": "done"})
	assert.Equal(t, uint64(2), e4.LamportClock)
	e5 := b.Mint("lane.transition", "task-1", "node-a", map[string]any{"to": "done"})
	assert.Equal(t, uint64(7), e5.LamportClock)
}

func TestBuilder_Observe(t *testing.T) {
	b := NewBuilder()
	// Observation increments past the remote value: max(0, 10) + 1.
	assert.Equal(t, uint64(11), b.Observe("node-a", 10))

	evt := b.Mint("lane.opened", "task-1", "node-a", nil)
	assert.Equal(t, uint64(12), evt.LamportClock)
}

func TestBuilder_Options(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	b := NewBuilder(WithPrefix("scn"), WithBase(base), WithStep(time.Second))

	evt := b.Mint("lane.opened", "task-1", "node-a", nil)
	assert.Equal(t, "scn-000001", evt.EventID)
	assert.Equal(t, base.Add(time.Second), evt.Timestamp)
}

func TestBuilder_PanicsOnInvalidInput(t *testing.T) {
	b := NewBuilder()
	assert.Panics(t, func() {
		b.Mint("", "task-1", "node-a", nil)
	})
}

package clock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Tick(t *testing.T) {
	c := New("node-a")
	assert.Equal(t, uint64(0), c.Current(), "new clock starts at 0")

	assert.Equal(t, uint64(1), c.Tick())
	assert.Equal(t, uint64(2), c.Tick())
	assert.Equal(t, uint64(3), c.Tick())
	assert.Equal(t, uint64(3), c.Current())
}

func TestClock_NewAt(t *testing.T) {
	c := NewAt("node-a", 41)
	assert.Equal(t, uint64(42), c.Tick(), "resumes from stored counter")
}

func TestClock_Observe_AdvancesPastRemote(t *testing.T) {
	c := New("node-b")
	c.Tick() // 1

	got := c.Observe(10)
	assert.Equal(t, uint64(11), got, "max(1,10)+1")

	// Observing something older than us still ticks.
	got = c.Observe(3)
	assert.Equal(t, uint64(12), got, "max(11,3)+1")
}

func TestClock_Advance_CatchesUpWithoutIncrement(t *testing.T) {
	c := New("node-a")
	c.Tick() // 1

	assert.Equal(t, uint64(5), c.Advance(5), "raised to the authored value, no +1")
	assert.Equal(t, uint64(5), c.Advance(3), "never moves backwards")
	assert.Equal(t, uint64(6), c.Tick())
}

func TestClock_Observe_CausalRule(t *testing.T) {
	// If B observed A's event, B's subsequent values exceed A's.
	a := New("node-a")
	b := New("node-b")

	aClock := a.Tick()
	b.Observe(aClock)

	for i := 0; i < 5; i++ {
		assert.Greater(t, b.Tick(), aClock)
	}
}

func TestResumeCheckpoint_Memory(t *testing.T) {
	st := NewMemoryStorage()

	c, err := Resume(st, "node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), c.Current())

	c.Tick()
	c.Tick()
	require.NoError(t, Checkpoint(st, c))

	resumed, err := Resume(st, "node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), resumed.Current())
	assert.Equal(t, uint64(3), resumed.Tick(), "no clock value is ever reissued")
}

func TestSQLiteStorage_RoundTrip(t *testing.T) {
	st, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer st.Close()

	// Unknown node loads as 0.
	v, err := st.Load("node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), v)

	require.NoError(t, st.Save("node-a", 7))
	v, err = st.Load("node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)

	// Counters are per node.
	require.NoError(t, st.Save("node-b", 3))
	v, err = st.Load("node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), v)
}

func TestSQLiteStorage_NeverMovesBackwards(t *testing.T) {
	st, err := OpenSQLite(":memory:")
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.Save("node-a", 10))
	require.NoError(t, st.Save("node-a", 4), "stale save is ignored, not an error")

	v, err := st.Load("node-a")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), v)
}

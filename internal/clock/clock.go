// Package clock implements the per-node Lamport logical clock.
//
// Two rules govern the clock (Lamport 1978):
//
//	IR1 (internal event): before producing an event, increment the clock.
//	IR2 (observation): on seeing a remote event with clock t,
//	     set the clock to max(own, t) + 1.
//
// A Clock is owned by exactly one producing node. It is not
// internally synchronized: if several goroutines share one logical
// node identity, the host application must serialize Tick/Observe
// itself. The library is agnostic to the host's threading model, and
// nodes exchange only the resulting integers, never the clock object.
package clock

import "fmt"

// Clock is a per-node monotonic logical counter.
type Clock struct {
	nodeID string
	value  uint64
}

// New creates a clock for nodeID starting at 0. The first Tick
// returns 1.
func New(nodeID string) *Clock {
	return &Clock{nodeID: nodeID}
}

// NewAt creates a clock resuming from a known value, e.g. a counter
// loaded from durable storage after a process restart.
func NewAt(nodeID string, value uint64) *Clock {
	return &Clock{nodeID: nodeID, value: value}
}

// Tick increments the clock and returns the new value (IR1).
func (c *Clock) Tick() uint64 {
	c.value++
	return c.value
}

// Observe advances the clock past a remote value (IR2): the counter
// becomes max(local, remote) + 1, so every subsequent local value
// exceeds the observed one.
func (c *Clock) Observe(remote uint64) uint64 {
	if remote > c.value {
		c.value = remote
	}
	c.value++
	return c.value
}

// Advance raises the counter to value if it is behind, without the
// IR2 increment. For catching a clock up to an event this node itself
// authored at that value, as opposed to observing a remote one.
func (c *Clock) Advance(value uint64) uint64 {
	if value > c.value {
		c.value = value
	}
	return c.value
}

// Current returns the clock value without advancing it.
func (c *Clock) Current() uint64 {
	return c.value
}

// NodeID returns the writer identity this clock stamps events for.
func (c *Clock) NodeID() string {
	return c.nodeID
}

// Storage persists a node's counter across restarts. The clock itself
// never decides persistence; callers resume via Resume and checkpoint
// via Checkpoint whenever their durability policy says so.
type Storage interface {
	Load(nodeID string) (uint64, error)
	Save(nodeID string, value uint64) error
}

// Resume builds a clock seeded from storage. A node with no stored
// counter starts at 0.
func Resume(st Storage, nodeID string) (*Clock, error) {
	v, err := st.Load(nodeID)
	if err != nil {
		return nil, fmt.Errorf("clock: resume %s: %w", nodeID, err)
	}
	return NewAt(nodeID, v), nil
}

// Checkpoint writes the clock's current value to storage.
func Checkpoint(st Storage, c *Clock) error {
	if err := st.Save(c.nodeID, c.value); err != nil {
		return fmt.Errorf("clock: checkpoint %s: %w", c.nodeID, err)
	}
	return nil
}

// MemoryStorage is a map-backed Storage for tests and hosts that
// handle durability elsewhere.
type MemoryStorage struct {
	values map[string]uint64
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string]uint64)}
}

// Load returns the stored counter for nodeID, or 0 if none exists.
func (m *MemoryStorage) Load(nodeID string) (uint64, error) {
	return m.values[nodeID], nil
}

// Save stores the counter for nodeID.
func (m *MemoryStorage) Save(nodeID string, value uint64) error {
	m.values[nodeID] = value
	return nil
}

// Package testutil mints deterministic events for tests and scenario
// replay. The same builder configuration always produces byte-identical
// events, which is what golden snapshot comparison depends on.
package testutil

import (
	"fmt"
	"sync"
	"time"

	"github.com/weftlog/weft/internal/clock"
	"github.com/weftlog/weft/internal/event"
)

// defaultBase is an arbitrary fixed instant; what matters is that it
// never changes between runs.
var defaultBase = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Builder mints events with sequential ids (evt-000001, ...), a fixed
// base timestamp stepped once per event, and an independent lamport
// clock per node id.
//
// Thread-safety: all methods are safe for concurrent use.
type Builder struct {
	mu     sync.Mutex
	prefix string
	seq    int
	base   time.Time
	step   time.Duration
	clocks map[string]*clock.Clock
}

// BuilderOption configures a Builder at construction time.
type BuilderOption func(*Builder)

// WithPrefix overrides the "evt" id prefix.
func WithPrefix(prefix string) BuilderOption {
	return func(b *Builder) { b.prefix = prefix }
}

// WithBase overrides the fixed base timestamp.
func WithBase(base time.Time) BuilderOption {
	return func(b *Builder) { b.base = base.UTC() }
}

// WithStep overrides the per-event timestamp increment (default 1ms).
func WithStep(step time.Duration) BuilderOption {
	return func(b *Builder) { b.step = step }
}

// NewBuilder creates a builder starting at sequence 0.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		prefix: "evt",
		base:   defaultBase,
		step:   time.Millisecond,
		clocks: make(map[string]*clock.Clock),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Mint builds the next event: the node's clock ticks and the timestamp
// advances one step. Panics on invalid input; builders are test-only.
func (b *Builder) Mint(eventType, aggregateID, nodeID string, payload map[string]any) event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mint(b.nodeClock(nodeID).Tick(), eventType, aggregateID, nodeID, payload)
}

// MintAt builds the next event with an explicit lamport value, for
// scenarios that stage concurrent writers. The staged event is the
// node's own write at that value, not a remote observation, so the
// clock catches up to it without the IR2 increment and later Mint
// calls continue from there.
func (b *Builder) MintAt(lamport uint64, eventType, aggregateID, nodeID string, payload map[string]any) event.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodeClock(nodeID).Advance(lamport)
	return b.mint(lamport, eventType, aggregateID, nodeID, payload)
}

// Observe folds a remote clock value into one node's clock without
// minting an event.
func (b *Builder) Observe(nodeID string, remote uint64) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nodeClock(nodeID).Observe(remote)
}

func (b *Builder) mint(lamport uint64, eventType, aggregateID, nodeID string, payload map[string]any) event.Event {
	b.seq++
	ts := b.base.Add(time.Duration(b.seq) * b.step)
	id := fmt.Sprintf("%s-%06d", b.prefix, b.seq)
	evt, err := event.New(id, eventType, aggregateID, nodeID, lamport, ts, payload)
	if err != nil {
		panic(fmt.Sprintf("testutil: minting %s: %v", id, err))
	}
	return evt
}

func (b *Builder) nodeClock(nodeID string) *clock.Clock {
	c, ok := b.clocks[nodeID]
	if !ok {
		c = clock.New(nodeID)
		b.clocks[nodeID] = c
	}
	return c
}

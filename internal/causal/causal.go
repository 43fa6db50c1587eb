// Package causal detects concurrent events and defines the total
// order every reducer sorts by.
//
// The log uses a single scalar Lamport clock per event, not a vector
// clock. A scalar clock cannot distinguish "truly concurrent" from
// "one node just had not observed the other yet", so this package uses
// the working definition the rest of the system is written against:
// two events are concurrent iff they carry the same clock value from
// different nodes. Downstream merge and rollback logic depends on this
// exact definition; do not upgrade it to vector clocks in place.
package causal

import (
	"cmp"

	"github.com/weftlog/weft/internal/event"
)

// IsConcurrent reports whether neither event causally precedes the
// other under the scalar-clock approximation: equal lamport clock,
// different writer.
func IsConcurrent(a, b event.Event) bool {
	return a.LamportClock == b.LamportClock && a.NodeID != b.NodeID
}

// Key is the deterministic total-order sort key. Three fields, always:
// lamport clock primary, fixed-width UTC timestamp secondary, event id
// as the final tiebreak. A two-field (clock, node) key is not enough -
// one node can emit several same-clock events across domains sharing
// the log, and those would tie.
type Key struct {
	Clock     uint64 `json:"clock"`
	Timestamp string `json:"timestamp"`
	EventID   string `json:"event_id"`
}

// TotalOrderKey returns the sort key for an event.
func TotalOrderKey(e event.Event) Key {
	return Key{
		Clock:     e.LamportClock,
		Timestamp: event.FormatTimestamp(e.Timestamp),
		EventID:   e.EventID,
	}
}

// Compare orders two keys: negative if k precedes other, positive if
// it follows, zero only for the same event.
func (k Key) Compare(other Key) int {
	if c := cmp.Compare(k.Clock, other.Clock); c != 0 {
		return c
	}
	if c := cmp.Compare(k.Timestamp, other.Timestamp); c != 0 {
		return c
	}
	return cmp.Compare(k.EventID, other.EventID)
}

// SameTier reports whether two keys share the primary component, the
// lamport clock. Concurrency is defined over clocks alone; timestamps
// only order members inside a tier. Events in the same tier are the
// groups rollback reordering and priority merges apply to.
func (k Key) SameTier(other Key) bool {
	return k.Clock == other.Clock
}

// Compare orders two events by their total-order key.
func Compare(a, b event.Event) int {
	return TotalOrderKey(a).Compare(TotalOrderKey(b))
}

// Less reports whether a sorts before b.
func Less(a, b event.Event) bool {
	return Compare(a, b) < 0
}

// Resolution records which of two or more concurrent candidates was
// chosen and the deterministic key that decided it. Ephemeral: built
// and consumed at the call site, kept only for audit trails.
type Resolution struct {
	Winner event.Event `json:"winner"`
	Key    Key         `json:"key"`
	Reason string      `json:"reason"`
}

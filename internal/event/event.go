// Package event defines the causal event envelope shared by every
// domain reducer.
//
// An Event is immutable for its entire lifetime: the constructor
// deep-copies the payload, no mutating methods are exposed, and any
// "update" produces a fresh envelope via WithPayload. Events are
// passed by value everywhere; callers must never write through the
// Payload map they hand to New.
//
// Ordering authority is the lamport clock, never the wall-clock
// timestamp. The timestamp is advisory (human-facing, tiebreak only).
package event

import (
	"fmt"
	"reflect"
	"time"
)

// Event is the unit of record in the causal log.
//
// EventID must be globally unique and lexicographically sortable
// (UUIDv7 from Generator satisfies both). LamportClock is the causal
// order authority. CausationID and CorrelationID are optional links
// to originating events; empty string means absent.
type Event struct {
	EventID       string         `json:"event_id"`
	EventType     string         `json:"event_type"`
	AggregateID   string         `json:"aggregate_id"`
	Timestamp     time.Time      `json:"timestamp"`
	NodeID        string         `json:"node_id"`
	LamportClock  uint64         `json:"lamport_clock"`
	CausationID   string         `json:"causation_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// New constructs an Event and validates the mandatory fields.
//
// EventID and LamportClock are never defaulted here - producers tick
// their own clock and supply their own identifier. The payload map is
// deep-copied so later writes by the caller cannot reach the envelope.
func New(id, eventType, aggregateID, nodeID string, clock uint64, ts time.Time, payload map[string]any) (Event, error) {
	switch {
	case id == "":
		return Event{}, fmt.Errorf("event: event_id is required")
	case eventType == "":
		return Event{}, fmt.Errorf("event: event_type is required")
	case aggregateID == "":
		return Event{}, fmt.Errorf("event: aggregate_id is required")
	case nodeID == "":
		return Event{}, fmt.Errorf("event: node_id is required")
	case clock == 0:
		return Event{}, fmt.Errorf("event: lamport_clock must be positive (clocks tick before stamping)")
	}

	return Event{
		EventID:      id,
		EventType:    eventType,
		AggregateID:  aggregateID,
		Timestamp:    ts.UTC(),
		NodeID:       nodeID,
		LamportClock: clock,
		Payload:      copyPayload(payload),
	}, nil
}

// WithPayload returns a copy of the event carrying a new payload.
// The original event is untouched.
func (e Event) WithPayload(payload map[string]any) Event {
	e.Payload = copyPayload(payload)
	return e
}

// WithCausation returns a copy linking the event to its cause and
// correlation chain.
func (e Event) WithCausation(causationID, correlationID string) Event {
	e.CausationID = causationID
	e.CorrelationID = correlationID
	return e
}

// Clone returns a deep copy, including the payload map.
func (e Event) Clone() Event {
	e.Payload = copyPayload(e.Payload)
	return e
}

// Equal reports full structural equality, payload included.
//
// Used by dedup correctness tests, not by the hot path (the pipeline
// dedups by EventID alone).
func Equal(a, b Event) bool {
	if a.EventID != b.EventID ||
		a.EventType != b.EventType ||
		a.AggregateID != b.AggregateID ||
		!a.Timestamp.Equal(b.Timestamp) ||
		a.NodeID != b.NodeID ||
		a.LamportClock != b.LamportClock ||
		a.CausationID != b.CausationID ||
		a.CorrelationID != b.CorrelationID {
		return false
	}
	ah, aerr := a.ContentHash()
	bh, berr := b.ContentHash()
	if aerr != nil || berr != nil {
		// Unhashable payloads (e.g. a non-integral float) can still
		// be equal; fall back to a structural comparison.
		if (aerr == nil) != (berr == nil) {
			return false
		}
		return reflect.DeepEqual(a.Payload, b.Payload)
	}
	return ah == bh
}

func copyPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyPayload(val)
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = copyValue(elem)
		}
		return out
	default:
		return v
	}
}

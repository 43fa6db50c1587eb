// Package reduce implements the deterministic reduction engine every
// domain state machine instantiates.
//
// The pipeline is fixed, always in this order:
//
//	filter → sort → dedup → fold → assemble
//
// Determinism comes from exactly one place: the stable sort by the
// three-field total-order key (lamport clock, timestamp, event id).
// Given that, any causal-order-preserving permutation of the same
// input multiset reduces to a structurally equal ReducedState.
//
// Every function here is a synchronous pure computation over
// already-materialized data. The same Reducer may run concurrently
// from any number of goroutines: it holds no mutable state between
// calls, and each call threads a private accumulator.
package reduce

import (
	"errors"
	"fmt"
	"slices"

	"github.com/weftlog/weft/internal/causal"
	"github.com/weftlog/weft/internal/event"
)

// Mode governs how domain rule violations propagate.
type Mode string

const (
	// Strict aborts the whole reduction on the first violation; no
	// partial ReducedState is returned.
	Strict Mode = "strict"
	// Permissive never aborts on domain violations: every violation
	// becomes an Anomaly and folding continues to the end of the
	// input. The trade-off for dashboards that must render some state
	// even from a corrupted log.
	Permissive Mode = "permissive"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case Strict, Permissive:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown reduction mode %q (want strict or permissive)", s)
	}
}

// Anomaly records a rule violation that did not abort reduction.
// Append-only within one pass, never mutated after creation.
type Anomaly struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ReducedState is the frozen projection assembled from one reduction
// call. EventCount is the number of unique recognized events that were
// considered (post-dedup), not the raw post-filter count. The struct
// is built once and never mutated - the fold works on a private
// accumulator and the result is a fresh value.
type ReducedState[S any] struct {
	State       S         `json:"state"`
	Anomalies   []Anomaly `json:"anomalies"`
	EventCount  int       `json:"event_count"`
	LastEventID string    `json:"last_processed_event_id"`
}

// Handler folds one event into the accumulator. Rule violations are
// signaled by returning a *Violation; any other non-nil error is
// treated as a programming error and aborts the reduction in both
// modes. A handler may partially apply a violating event before
// returning the violation - that policy is per-domain and documented
// where the handler lives.
type Handler[S any] func(state *S, evt event.Event) error

// PayloadValidator is the boundary interface to the external schema
// collaborator. The fold calls it once per event before the handler;
// a failure is treated exactly like a domain rule violation.
type PayloadValidator interface {
	Validate(eventType string, payload map[string]any) error
}

// Reducer is a reusable, immutable domain reduction configuration.
// The recognized event-type set is exactly the handler table's keys.
type Reducer[S any] struct {
	domain    string
	initial   func() S
	handlers  map[string]Handler[S]
	validator PayloadValidator

	singleAggregate bool
	foldLast        func(event.Event) bool
	finalize        func(*S, []event.Event)
}

// Option configures a Reducer at construction time.
type Option[S any] func(*Reducer[S])

// WithValidator installs the payload validator called before every
// handler invocation.
func WithValidator[S any](v PayloadValidator) Option[S] {
	return func(r *Reducer[S]) { r.validator = v }
}

// WithSingleAggregate requires every recognized event to target the
// same aggregate. A mixed stream is an invariant violation, fatal in
// both modes.
func WithSingleAggregate[S any]() Option[S] {
	return func(r *Reducer[S]) { r.singleAggregate = true }
}

// WithFoldLast installs a predicate for concurrent-group reordering:
// within any run of events sharing the same lamport clock, events
// matching the predicate are folded after the rest, so they are
// guaranteed to be the final write of that tier. Domains use this for
// rollback-aware precedence.
func WithFoldLast[S any](pred func(event.Event) bool) Option[S] {
	return func(r *Reducer[S]) { r.foldLast = pred }
}

// WithFinalizer installs a hook that runs after the fold with the
// deduped, sorted event slice - the place for whole-stream CRDT merges
// (grow-only sets, counters) that are cheaper computed once than
// threaded through every handler.
func WithFinalizer[S any](fn func(*S, []event.Event)) Option[S] {
	return func(r *Reducer[S]) { r.finalize = fn }
}

// New builds a Reducer for the named domain. The handler table is
// copied so later caller mutation cannot change the recognized set.
func New[S any](domain string, initial func() S, handlers map[string]Handler[S], opts ...Option[S]) *Reducer[S] {
	table := make(map[string]Handler[S], len(handlers))
	for k, v := range handlers {
		table[k] = v
	}
	r := &Reducer[S]{domain: domain, initial: initial, handlers: table}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Domain returns the reducer's domain name.
func (r *Reducer[S]) Domain() string { return r.domain }

// RecognizedTypes returns the event types this reducer folds, sorted.
// Everything else in a shared log is silently dropped by the filter.
func (r *Reducer[S]) RecognizedTypes() []string {
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// Reduce runs the full pipeline over an unordered event multiset.
//
// Empty input after filtering returns the domain's default state with
// zero EventCount, not an error. The input slice is never mutated.
func (r *Reducer[S]) Reduce(events []event.Event, mode Mode) (*ReducedState[S], error) {
	if mode != Strict && mode != Permissive {
		return nil, fmt.Errorf("%s: unknown reduction mode %q", r.domain, mode)
	}

	// Filter: keep only recognized event types. Unrecognized types are
	// not anomalies - they belong to another domain's stream sharing
	// the same log.
	filtered := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if _, ok := r.handlers[evt.EventType]; ok {
			filtered = append(filtered, evt)
		}
	}

	// Sort: the sole source of determinism.
	slices.SortStableFunc(filtered, causal.Compare)

	// Dedup: first occurrence in sorted order wins.
	deduped := Dedup(filtered)

	if r.singleAggregate {
		if err := r.checkSingleAggregate(deduped); err != nil {
			return nil, err
		}
	}

	folded := deduped
	if r.foldLast != nil {
		folded = reorderTiers(deduped, r.foldLast)
	}

	// Fold: thread a private accumulator left to right.
	acc := r.initial()
	var anomalies []Anomaly
	for _, evt := range folded {
		if err := r.applyEvent(&acc, evt); err != nil {
			var v *Violation
			if !errors.As(err, &v) {
				return nil, fmt.Errorf("%s: handler for %s: %w", r.domain, evt.EventType, err)
			}
			if mode == Strict {
				return nil, v
			}
			anomalies = append(anomalies, Anomaly{EventID: v.EventID, Kind: v.Kind, Message: v.Message})
		}
	}

	if r.finalize != nil {
		r.finalize(&acc, folded)
	}

	// Assemble: a fresh, frozen projection.
	state := &ReducedState[S]{
		State:      acc,
		Anomalies:  anomalies,
		EventCount: len(deduped),
	}
	if len(folded) > 0 {
		state.LastEventID = folded[len(folded)-1].EventID
	}
	return state, nil
}

func (r *Reducer[S]) applyEvent(acc *S, evt event.Event) error {
	if r.validator != nil {
		if err := r.validator.Validate(evt.EventType, evt.Payload); err != nil {
			var v *Violation
			if errors.As(err, &v) {
				return v
			}
			return NewViolation(evt.EventID, KindMalformedPayload, err.Error())
		}
	}
	return r.handlers[evt.EventType](acc, evt)
}

func (r *Reducer[S]) checkSingleAggregate(events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	expected := events[0].AggregateID
	for _, evt := range events[1:] {
		if evt.AggregateID != expected {
			return &InvariantError{
				Domain:             r.domain,
				ExpectedAggregate:  expected,
				OffendingAggregate: evt.AggregateID,
				EventID:            evt.EventID,
			}
		}
	}
	return nil
}

// Dedup drops events whose event id has already been seen, keeping the
// first occurrence. Idempotent: deduping a deduped slice is a no-op.
// The input slice is not mutated.
func Dedup(events []event.Event) []event.Event {
	seen := make(map[string]struct{}, len(events))
	out := make([]event.Event, 0, len(events))
	for _, evt := range events {
		if _, dup := seen[evt.EventID]; dup {
			continue
		}
		seen[evt.EventID] = struct{}{}
		out = append(out, evt)
	}
	return out
}

// reorderTiers stable-partitions each run of events sharing a lamport
// clock so that predicate-matching events come last. Events in the
// same tier are concurrent regardless of their wall-clock timestamps,
// so any deterministic order among them is causally valid; folding the
// matching ones last makes them the tier's final write.
func reorderTiers(events []event.Event, pred func(event.Event) bool) []event.Event {
	out := make([]event.Event, 0, len(events))
	for start := 0; start < len(events); {
		end := start + 1
		tier := causal.TotalOrderKey(events[start])
		for end < len(events) && tier.SameTier(causal.TotalOrderKey(events[end])) {
			end++
		}
		for _, evt := range events[start:end] {
			if !pred(evt) {
				out = append(out, evt)
			}
		}
		for _, evt := range events[start:end] {
			if pred(evt) {
				out = append(out, evt)
			}
		}
		start = end
	}
	return out
}

// Package harness runs conformance scenarios against the lane state
// machine: it stages the scenario's event multiset, reduces it in the
// scenario's mode, evaluates the expectations, and optionally snapshots
// the projection against a golden file.
//
// Scenarios run the real reduction pipeline end to end, including the
// CUE payload schema registry; nothing is manufactured from the expect
// clauses themselves.
package harness

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/weftlog/weft/internal/event"
	"github.com/weftlog/weft/internal/lane"
	"github.com/weftlog/weft/internal/reduce"
	"github.com/weftlog/weft/internal/schema"
)

// scenarioBase is the timestamp assigned to an event at list position 0
// when the scenario omits one; each later position adds a millisecond.
var scenarioBase = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// Result holds one scenario run: the reduced projection (nil when
// reduction errored), the reduction error, and the expectation
// failures.
type Result struct {
	Scenario *Scenario
	Mode     reduce.Mode
	State    *reduce.ReducedState[lane.Status]
	Err      error
	Failures []string
}

// Passed reports whether every expectation held.
func (r *Result) Passed() bool { return len(r.Failures) == 0 }

// Harness wires the lane machine with the payload schema registry.
// Immutable after New; one harness can run any number of scenarios.
type Harness struct {
	machine *lane.Machine
	logger  *slog.Logger
}

// Option configures a Harness at construction time.
type Option func(*Harness)

// WithLogger replaces the default discarding logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New builds a harness around the default lane machine with the CUE
// schema registry installed as the payload validator.
func New(opts ...Option) (*Harness, error) {
	registry, err := schema.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("building schema registry: %w", err)
	}
	h := &Harness{
		machine: lane.NewMachine(lane.WithPayloadValidator(registry)),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run stages the scenario's events, reduces them, and evaluates the
// expectations. The returned error covers harness misuse only; a
// reduction failure lands in Result.Err where error expectations can
// see it.
func (h *Harness) Run(scenario *Scenario) (*Result, error) {
	mode := reduce.Strict
	if scenario.Mode != "" {
		var err error
		if mode, err = reduce.ParseMode(scenario.Mode); err != nil {
			return nil, err
		}
	}

	events, err := stageEvents(scenario.Events)
	if err != nil {
		return nil, err
	}

	state, reduceErr := h.machine.Reduce(events, mode)
	result := &Result{Scenario: scenario, Mode: mode, State: state, Err: reduceErr}
	result.Failures = evaluate(&scenario.Expect, result)

	h.logger.Info("scenario reduced",
		"scenario", scenario.Name,
		"mode", string(mode),
		"events", len(events),
		"passed", result.Passed(),
	)
	return result, nil
}

// Run is the one-shot form: a fresh default harness runs one scenario.
func Run(scenario *Scenario) (*Result, error) {
	h, err := New()
	if err != nil {
		return nil, err
	}
	return h.Run(scenario)
}

// stageEvents converts event specs into validated events, filling in
// stepped timestamps where a record omits one.
func stageEvents(specs []EventSpec) ([]event.Event, error) {
	events := make([]event.Event, 0, len(specs))
	for i, spec := range specs {
		ts := scenarioBase.Add(time.Duration(i) * time.Millisecond)
		if spec.Timestamp != "" {
			parsed, err := time.Parse(time.RFC3339Nano, spec.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("events[%d]: bad timestamp: %w", i, err)
			}
			ts = parsed
		}
		evt, err := event.New(spec.EventID, spec.EventType, spec.AggregateID,
			spec.NodeID, spec.LamportClock, ts, spec.Payload)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		events = append(events, evt)
	}
	return events, nil
}

// evaluate checks every set expectation and returns one failure message
// per miss.
func evaluate(expect *Expectation, result *Result) []string {
	var failures []string
	fail := func(format string, args ...any) {
		failures = append(failures, fmt.Sprintf(format, args...))
	}

	if expect.ErrorContains != "" {
		switch {
		case result.Err == nil:
			fail("expected reduction error containing %q, got success", expect.ErrorContains)
		case !strings.Contains(result.Err.Error(), expect.ErrorContains):
			fail("expected reduction error containing %q, got %q", expect.ErrorContains, result.Err.Error())
		}
		return failures
	}

	if result.Err != nil {
		fail("unexpected reduction error: %v", result.Err)
		return failures
	}

	st := result.State
	if expect.Lane != "" && string(st.State.Lane) != expect.Lane {
		fail("lane: want %q, got %q", expect.Lane, st.State.Lane)
	}
	if expect.TransitionCount != nil && st.State.TransitionCount != *expect.TransitionCount {
		fail("transition_count: want %d, got %d", *expect.TransitionCount, st.State.TransitionCount)
	}
	if expect.Reopens != nil && st.State.Reopens != *expect.Reopens {
		fail("reopens: want %d, got %d", *expect.Reopens, st.State.Reopens)
	}
	if expect.Labels != nil {
		want := slices.Clone(expect.Labels)
		slices.Sort(want)
		if !slices.Equal(want, st.State.Labels) {
			fail("labels: want %v, got %v", want, st.State.Labels)
		}
	}
	if expect.EventCount != nil && st.EventCount != *expect.EventCount {
		fail("event_count: want %d, got %d", *expect.EventCount, st.EventCount)
	}
	if expect.LastEventID != "" && st.LastEventID != expect.LastEventID {
		fail("last_event_id: want %q, got %q", expect.LastEventID, st.LastEventID)
	}
	if expect.Anomalies != nil && len(st.Anomalies) != *expect.Anomalies {
		fail("anomalies: want %d, got %d (%v)", *expect.Anomalies, len(st.Anomalies), st.Anomalies)
	}
	for _, kind := range expect.AnomalyKinds {
		if !slices.ContainsFunc(st.Anomalies, func(a reduce.Anomaly) bool { return a.Kind == kind }) {
			fail("anomaly_kinds: no anomaly of kind %q in %v", kind, st.Anomalies)
		}
	}
	if expect.TieBreakWinner != "" {
		switch {
		case st.State.TieBreak == nil:
			fail("tie_break_winner: want %q, got no tie break", expect.TieBreakWinner)
		case st.State.TieBreak.EventID != expect.TieBreakWinner:
			fail("tie_break_winner: want %q, got %q", expect.TieBreakWinner, st.State.TieBreak.EventID)
		}
	}
	return failures
}

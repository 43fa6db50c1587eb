package lane

import (
	"errors"
	"slices"
	"strings"

	"github.com/weftlog/weft/internal/causal"
	"github.com/weftlog/weft/internal/crdt"
	"github.com/weftlog/weft/internal/event"
	"github.com/weftlog/weft/internal/reduce"
)

// Event types the lane reducer recognizes. Everything else in a shared
// log belongs to another domain and is filtered out silently.
const (
	// TypeOpened is the entry event: the entity comes into existence
	// in the opened lane.
	TypeOpened = "lane.opened"
	// TypeTransition is a forward-progressing lane move.
	TypeTransition = "lane.transition"
	// TypeRollback is a backward, corrective move. Rollback events win
	// over any forward-progressing concurrent event: within a
	// concurrent tier they are folded last, so they are the final
	// write.
	TypeRollback = "lane.rollback"
)

// Step is one applied transition in an entity's history.
type Step struct {
	EventID string `json:"event_id"`
	From    *Lane  `json:"from,omitempty"`
	To      Lane   `json:"to"`
	Forced  bool   `json:"forced,omitempty"`
}

// TieBreak records a priority-merge decision over concurrent final
// writes, for audit.
type TieBreak struct {
	EventID string     `json:"event_id"`
	Key     causal.Key `json:"key"`
	Reason  string     `json:"reason"`
}

// Status is the lane domain's reduced projection for one entity.
type Status struct {
	AggregateID     string    `json:"aggregate_id,omitempty"`
	Opened          bool      `json:"opened"`
	Lane            Lane      `json:"lane,omitempty"`
	Actor           string    `json:"actor,omitempty"`
	Forced          bool      `json:"forced,omitempty"`
	TransitionCount int       `json:"transition_count"`
	Reopens         int64     `json:"reopens"`
	Labels          []string  `json:"labels,omitempty"`
	History         []Step    `json:"history,omitempty"`
	TieBreak        *TieBreak `json:"tie_break,omitempty"`
}

// DefaultPriorities orders lanes for concurrent-write resolution:
// corrective and halting states beat forward progress.
func DefaultPriorities() map[string]int {
	return map[string]int{
		string(Canceled):   60,
		string(Blocked):    50,
		string(Done):       40,
		string(Resolved):   30,
		string(Review):     20,
		string(Discussing): 10,
		string(Opened):     0,
	}
}

// Machine is the lane-transition state machine: a configured reduction
// over lane events. Immutable and safe for concurrent use once built.
type Machine struct {
	rules      *Rules
	parser     *Parser
	priorities map[string]int
	validator  reduce.PayloadValidator
	reducer    *reduce.Reducer[Status]
}

// MachineOption configures a Machine at construction time.
type MachineOption func(*Machine)

// WithRules replaces the default transition matrix.
func WithRules(r *Rules) MachineOption {
	return func(m *Machine) { m.rules = r }
}

// WithAliases replaces the default lane alias map.
func WithAliases(aliases map[string]Lane) MachineOption {
	return func(m *Machine) { m.parser = NewParser(aliases) }
}

// WithPriorities replaces the default concurrent-write priorities.
func WithPriorities(p map[string]int) MachineOption {
	return func(m *Machine) { m.priorities = p }
}

// WithPayloadValidator installs an external payload validator (e.g.
// the CUE schema registry) in front of every handler.
func WithPayloadValidator(v reduce.PayloadValidator) MachineOption {
	return func(m *Machine) { m.validator = v }
}

// NewMachine builds the lane reducer. Lane streams are per-entity:
// single-aggregate mode is on, so mixing entities in one reduction is
// an invariant violation.
func NewMachine(opts ...MachineOption) *Machine {
	m := &Machine{
		rules:      DefaultRules(),
		parser:     NewParser(nil),
		priorities: DefaultPriorities(),
	}
	for _, opt := range opts {
		opt(m)
	}

	handlers := map[string]reduce.Handler[Status]{
		TypeOpened:     m.handleOpened,
		TypeTransition: m.handleTransition,
		TypeRollback:   m.handleRollback,
	}
	reducerOpts := []reduce.Option[Status]{
		reduce.WithSingleAggregate[Status](),
		reduce.WithFoldLast[Status](func(evt event.Event) bool {
			return evt.EventType == TypeRollback
		}),
		reduce.WithFinalizer[Status](m.finalize),
	}
	if m.validator != nil {
		reducerOpts = append(reducerOpts, reduce.WithValidator[Status](m.validator))
	}
	m.reducer = reduce.New("lane", func() Status { return Status{} }, handlers, reducerOpts...)
	return m
}

// Reduce folds an unordered lane event multiset into a Status
// projection.
func (m *Machine) Reduce(events []event.Event, mode reduce.Mode) (*reduce.ReducedState[Status], error) {
	return m.reducer.Reduce(events, mode)
}

// Rules exposes the transition matrix for standalone validation.
func (m *Machine) Rules() *Rules { return m.rules }

// RecognizedTypes returns the lane event types, sorted.
func (m *Machine) RecognizedTypes() []string { return m.reducer.RecognizedTypes() }

func (m *Machine) handleOpened(s *Status, evt event.Event) error {
	if s.Opened {
		// Keep the existing state; a second open is a duplicate
		// logical key, not a transition.
		return reduce.NewViolation(evt.EventID, KindDuplicateEntity,
			"entity is already opened; duplicate entry event")
	}
	s.Opened = true
	s.Lane = Opened
	s.AggregateID = evt.AggregateID
	if actor, ok := stringField(evt.Payload, "actor"); ok {
		s.Actor = actor
	}
	s.TransitionCount++
	s.History = append(s.History, Step{EventID: evt.EventID, To: Opened})
	return nil
}

func (m *Machine) handleTransition(s *Status, evt event.Event) error {
	return m.applyTransition(s, evt, false)
}

func (m *Machine) handleRollback(s *Status, evt event.Event) error {
	return m.applyTransition(s, evt, true)
}

// applyTransition moves the entity and reports violations. The
// accumulator is authoritative for the from-lane: the payload's "from"
// is advisory and only participates in standalone validation.
func (m *Machine) applyTransition(s *Status, evt event.Event, rollback bool) error {
	rec, err := ParseRecord(evt.EventID, evt.Payload, m.parser)
	if err != nil {
		var v *reduce.Violation
		if errors.As(err, &v) {
			return v
		}
		// Without a target lane there is nothing to apply.
		return reduce.NewViolation(evt.EventID, reduce.KindMalformedPayload, err.Error())
	}

	if s.Opened {
		from := s.Lane
		rec.From = &from
	} else {
		rec.From = nil
	}

	result := m.rules.Validate(rec)
	if rollback && !m.rules.IsRollback(rec.From, rec.To) {
		result.Valid = false
		result.Violations = append(result.Violations, RuleViolation{
			Kind:    KindIllegalTransition,
			Message: describePair(rec.From, rec.To) + " is not a rollback-classified transition",
		})
	}

	// Apply before reporting: permissive policy for this domain is
	// that the latest claimed state is rendered, violations and all.
	s.Opened = true
	s.Lane = rec.To
	s.AggregateID = evt.AggregateID
	if rec.Actor != "" {
		s.Actor = rec.Actor
	}
	if rec.Force {
		s.Forced = true
	}
	s.TransitionCount++
	s.History = append(s.History, Step{EventID: evt.EventID, From: rec.From, To: rec.To, Forced: rec.Force})

	if !result.Valid {
		return reduce.NewViolation(evt.EventID, result.Violations[0].Kind,
			strings.Join(result.Messages(), "; "))
	}
	return nil
}

// finalize runs whole-stream CRDT merges after the fold: the grow-only
// label set, the rollback counter, and priority resolution of a
// trailing concurrent tier.
func (m *Machine) finalize(s *Status, events []event.Event) {
	if len(events) == 0 {
		return
	}

	labels := crdt.GrowOnlySet(events, crdt.StringSetField("labels"))
	if len(labels) > 0 {
		s.Labels = make([]string, 0, len(labels))
		for l := range labels {
			s.Labels = append(s.Labels, l)
		}
		slices.Sort(s.Labels)
	}

	s.Reopens = crdt.Counter(events, func(evt event.Event) int64 {
		if evt.EventType == TypeRollback {
			return 1
		}
		return 0
	})

	m.resolveTrailingTier(s, events)
}

// resolveTrailingTier applies the priority merge when the log ends in
// a set of concurrent non-rollback writes: the highest-priority lane
// claim wins rather than whichever sorted last. Tiers containing a
// rollback are already settled - the fold ordered the rollback last.
func (m *Machine) resolveTrailingTier(s *Status, events []event.Event) {
	last := events[len(events)-1]
	key := causal.TotalOrderKey(last)

	start := len(events) - 1
	for start > 0 && key.SameTier(causal.TotalOrderKey(events[start-1])) {
		start--
	}
	tier := events[start:]
	if len(tier) < 2 {
		return
	}

	nodes := make(map[string]struct{}, len(tier))
	for _, evt := range tier {
		if evt.EventType == TypeRollback {
			return
		}
		nodes[evt.NodeID] = struct{}{}
	}
	if len(nodes) < 2 {
		return
	}

	res, err := crdt.StateMachine(tier, m.priorities, func(evt event.Event) string {
		name, ok := stringField(evt.Payload, "to")
		if !ok {
			return ""
		}
		resolved, err := m.parser.Resolve(name)
		if err != nil {
			return ""
		}
		return string(resolved)
	})
	if err != nil {
		return
	}

	name, ok := stringField(res.Winner.Payload, "to")
	if !ok {
		return
	}
	winner, err := m.parser.Resolve(name)
	if err != nil {
		return
	}

	s.Lane = winner
	s.TieBreak = &TieBreak{EventID: res.Winner.EventID, Key: res.Key, Reason: res.Reason}
}

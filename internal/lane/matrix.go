package lane

import "fmt"

// pair is a (from, to) transition. Entry transitions (no prior lane)
// use the zero Lane as from.
type pair struct {
	from Lane
	to   Lane
}

// Rules holds the transition data: the explicit legal-pair set, the
// rollback classification, and the authority policy. Immutable after
// construction.
type Rules struct {
	legal      map[pair]bool
	rollback   map[pair]bool
	authorized map[string]bool
}

// DefaultRules returns the standard workflow matrix.
//
// Rollback pairs move an entity backward out of a review or resolved
// state; they are both legal transitions and the pairs the
// rollback-precedence logic classifies against.
func DefaultRules() *Rules {
	legal := []pair{
		{"", Opened}, // entry: an entity's first transition
		{Opened, Discussing},
		{Opened, Resolved},
		{Discussing, Review},
		{Discussing, Resolved},
		{Review, Resolved},
		{Resolved, Done},
		{Blocked, Opened},
		{Blocked, Discussing},
		{Blocked, Review},
	}
	rollback := []pair{
		{Review, Discussing},
		{Resolved, Discussing},
		{Resolved, Review},
	}

	r := &Rules{
		legal:      make(map[pair]bool, len(legal)+len(rollback)),
		rollback:   make(map[pair]bool, len(rollback)),
		authorized: map[string]bool{"owner": true, "admin": true},
	}
	for _, p := range legal {
		r.legal[p] = true
	}
	for _, p := range rollback {
		r.legal[p] = true
		r.rollback[p] = true
	}
	return r
}

// IsRollback reports whether (from, to) is a rollback-classified
// transition.
func (r *Rules) IsRollback(from *Lane, to Lane) bool {
	if from == nil {
		return false
	}
	return r.rollback[pair{*from, to}]
}

// RuleViolation is one broken rule: a taxonomy kind plus a
// reproducible message.
type RuleViolation struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ValidationResult reports every problem with a proposed transition at
// once. Guards are collected, never short-circuited.
type ValidationResult struct {
	Valid      bool            `json:"valid"`
	Violations []RuleViolation `json:"violations"`
}

// Messages flattens the violations for callers that only want text.
func (v ValidationResult) Messages() []string {
	out := make([]string, len(v.Violations))
	for i, rv := range v.Violations {
		out[i] = rv.Message
	}
	return out
}

// Validate checks a proposed transition. Order of checks:
//
//  1. A terminal from-lane without force is invalid.
//  2. Force short-circuits the matrix entirely; only structural
//     guards apply.
//  3. Otherwise the explicit pair set decides, plus two programmatic
//     rules: any non-terminal lane may move to blocked or canceled.
//  4. Guards run regardless of the matrix outcome and all violated
//     guards are reported together: rollbacks need a review_ref,
//     abandoning needs a reason, forcing needs a reason, and force or
//     terminal exit needs sufficient authority.
//
// Validate never returns an error; callers decide severity.
func (r *Rules) Validate(rec *TransitionRecord) ValidationResult {
	var violations []RuleViolation

	fromTerminal := rec.From != nil && rec.From.Terminal()

	if !rec.Force {
		switch {
		case fromTerminal:
			violations = append(violations, RuleViolation{
				Kind:    KindIllegalTransition,
				Message: fmt.Sprintf("terminal lane %s requires force to exit", *rec.From),
			})
		case !r.legalPair(rec.From, rec.To):
			violations = append(violations, RuleViolation{
				Kind:    KindIllegalTransition,
				Message: fmt.Sprintf("transition %s is not legal", describePair(rec.From, rec.To)),
			})
		}
	}

	// Guards, independent of force and of the matrix outcome. An
	// explicitly empty value fails them the same way absence does.
	if rec.Force && missing(rec.Reason) {
		violations = append(violations, RuleViolation{
			Kind:    KindGuardUnmet,
			Message: "force override requires a non-empty reason",
		})
	}
	if r.IsRollback(rec.From, rec.To) && missing(rec.ReviewRef) {
		violations = append(violations, RuleViolation{
			Kind:    KindGuardUnmet,
			Message: fmt.Sprintf("rollback %s requires a review_ref naming what was reviewed", describePair(rec.From, rec.To)),
		})
	}
	if rec.To == Canceled && missing(rec.Reason) {
		violations = append(violations, RuleViolation{
			Kind:    KindGuardUnmet,
			Message: "abandoning to canceled requires a stated reason",
		})
	}
	if (rec.Force || fromTerminal) && !r.authorized[rec.Authority] {
		violations = append(violations, RuleViolation{
			Kind:    KindAuthorityPolicy,
			Message: fmt.Sprintf("authority %q may not force or exit a terminal lane", rec.Authority),
		})
	}

	return ValidationResult{Valid: len(violations) == 0, Violations: violations}
}

// missing reports whether an optional payload value is absent or
// empty. Guards require a non-empty string either way; only the record
// keeps the distinction.
func missing(s *string) bool {
	return s == nil || *s == ""
}

// legalPair consults the explicit set plus the two programmatic rules.
func (r *Rules) legalPair(from *Lane, to Lane) bool {
	if from == nil {
		return r.legal[pair{"", to}]
	}
	if !from.Terminal() && (to == Blocked || to == Canceled) {
		return true
	}
	return r.legal[pair{*from, to}]
}

func describePair(from *Lane, to Lane) string {
	if from == nil {
		return fmt.Sprintf("(entry) -> %s (entities must enter through %s)", to, Opened)
	}
	return fmt.Sprintf("%s -> %s", *from, to)
}

// Package lane implements the guarded lane-transition state machine on
// top of the generic reduction engine.
//
// Lanes form a small closed set; done and canceled are terminal. The
// legal transitions are data (an explicit pair set plus two
// programmatic rules), not branching code. Validation never raises -
// it returns a ValidationResult and callers decide what is fatal.
//
// Permissive-mode policy for this domain: a violating transition IS
// still applied to the accumulator before the anomaly is recorded.
// Consumers of permissive reductions are dashboards that must render
// the latest claimed state of a corrupted log; the anomaly list is
// their signal that the claim is suspect. Strict mode aborts before
// anything downstream can observe the partial application.
package lane

import (
	"fmt"

	"github.com/weftlog/weft/internal/reduce"
)

// Lane is one of the closed set of workflow states.
type Lane string

const (
	Opened     Lane = "opened"
	Discussing Lane = "discussing"
	Review     Lane = "review"
	Resolved   Lane = "resolved"
	Blocked    Lane = "blocked"
	Done       Lane = "done"
	Canceled   Lane = "canceled"
)

// Lanes lists every valid lane in a fixed order.
func Lanes() []Lane {
	return []Lane{Opened, Discussing, Review, Resolved, Blocked, Done, Canceled}
}

// Terminal reports whether no outgoing transition is legal from l
// except under force override.
func (l Lane) Terminal() bool {
	return l == Done || l == Canceled
}

// Valid reports whether l is a member of the closed set.
func (l Lane) Valid() bool {
	switch l {
	case Opened, Discussing, Review, Resolved, Blocked, Done, Canceled:
		return true
	default:
		return false
	}
}

// Violation kinds this domain adds to the shared taxonomy.
const (
	KindIllegalTransition = "illegal_transition"
	KindGuardUnmet        = "guard_unmet"
	KindAuthorityPolicy   = "authority_policy"
	KindUnknownLane       = "unknown_lane"
	KindDuplicateEntity   = "duplicate_entity"
)

// Parser resolves lane names, including external aliases, to Lane
// values. The alias map is copied at construction and never mutated -
// alias resolution is a pure lookup with a defined error for unknown
// input, never a process-wide singleton.
type Parser struct {
	aliases map[string]Lane
}

// DefaultAliases maps the spellings external producers are known to
// use onto canonical lanes.
func DefaultAliases() map[string]Lane {
	return map[string]Lane{
		"open":        Opened,
		"discussion":  Discussing,
		"in_review":   Review,
		"reviewing":   Review,
		"closed":      Done,
		"complete":    Done,
		"completed":   Done,
		"cancelled":   Canceled,
		"abandoned":   Canceled,
		"on_hold":     Blocked,
		"in_progress": Discussing,
	}
}

// NewParser builds a Parser over the given alias map (nil means
// DefaultAliases). Canonical lane names always resolve, aliases are
// consulted second.
func NewParser(aliases map[string]Lane) *Parser {
	if aliases == nil {
		aliases = DefaultAliases()
	}
	copied := make(map[string]Lane, len(aliases))
	for k, v := range aliases {
		copied[k] = v
	}
	return &Parser{aliases: copied}
}

// Resolve maps a lane name or alias to its canonical Lane.
func (p *Parser) Resolve(name string) (Lane, error) {
	if l := Lane(name); l.Valid() {
		return l, nil
	}
	if l, ok := p.aliases[name]; ok {
		return l, nil
	}
	return "", fmt.Errorf("unknown lane %q", name)
}

// resolveViolation wraps an unknown-lane failure as a domain
// violation for the fold path.
func resolveViolation(eventID, name string) *reduce.Violation {
	return reduce.NewViolation(eventID, KindUnknownLane, fmt.Sprintf("unknown lane %q", name))
}

package reduce

import (
	"errors"
	"fmt"
)

// Violation kinds shared across domains. Domain packages add their own
// kinds; the engine itself only emits KindMalformedPayload.
const (
	KindMalformedPayload = "malformed_payload"
)

// Violation is a domain rule violation tied to a specific event. In
// strict mode it aborts the reduction as the returned error; in
// permissive mode it becomes an Anomaly record and folding continues.
type Violation struct {
	EventID string `json:"event_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Error implements the error interface with a reproducible message
// naming the offending event and rule.
func (v *Violation) Error() string {
	return fmt.Sprintf("%s: event %s: %s", v.Kind, v.EventID, v.Message)
}

// NewViolation builds a Violation for the given event.
func NewViolation(eventID, kind, message string) *Violation {
	return &Violation{EventID: eventID, Kind: kind, Message: message}
}

// IsViolation reports whether err is (or wraps) a domain rule
// violation.
func IsViolation(err error) bool {
	var v *Violation
	return errors.As(err, &v)
}

// InvariantError reports misuse of the pipeline itself, not a
// recoverable business condition: an event stream spanning more than
// one logical aggregate when exactly one is required. Always fatal,
// in both modes - continuing would silently mix unrelated state.
type InvariantError struct {
	Domain             string
	ExpectedAggregate  string
	OffendingAggregate string
	EventID            string
}

// Error names both the expected and the offending identifiers.
func (e *InvariantError) Error() string {
	return fmt.Sprintf(
		"%s: event %s targets aggregate %q but this reduction is scoped to aggregate %q",
		e.Domain, e.EventID, e.OffendingAggregate, e.ExpectedAggregate)
}

// IsInvariantError reports whether err is (or wraps) an invariant
// violation.
func IsInvariantError(err error) bool {
	var ie *InvariantError
	return errors.As(err, &ie)
}

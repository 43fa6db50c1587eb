package lane

import (
	"fmt"
)

// TransitionRecord is the validated payload of a lane event. Optional
// fields are pointers: absence is nil, never a sentinel value that
// could collide with legitimate data.
type TransitionRecord struct {
	From      *Lane   `json:"from_lane,omitempty"`
	To        Lane    `json:"to_lane"`
	Actor     string  `json:"actor"`
	ActorType string  `json:"actor_type,omitempty"`
	Authority string  `json:"authority,omitempty"`
	Force     bool    `json:"force,omitempty"`
	Reason    *string `json:"reason,omitempty"`
	ReviewRef *string `json:"review_ref,omitempty"`
}

// ParseRecord builds a TransitionRecord from a raw payload map,
// resolving lanes through the parser. Returns a typed failure rather
// than relying on reflection; a failed parse means the event cannot be
// applied at all (there is no target lane to move to).
func ParseRecord(eventID string, payload map[string]any, parser *Parser) (*TransitionRecord, error) {
	toName, ok := stringField(payload, "to")
	if !ok || toName == "" {
		return nil, fmt.Errorf("payload field %q is required", "to")
	}
	to, err := parser.Resolve(toName)
	if err != nil {
		return nil, resolveViolation(eventID, toName)
	}

	rec := &TransitionRecord{To: to}

	if fromName, ok := stringField(payload, "from"); ok && fromName != "" {
		from, err := parser.Resolve(fromName)
		if err != nil {
			return nil, resolveViolation(eventID, fromName)
		}
		rec.From = &from
	}

	rec.Actor, _ = stringField(payload, "actor")
	rec.ActorType, _ = stringField(payload, "actor_type")
	rec.Authority, _ = stringField(payload, "authority")

	if force, ok := payload["force"].(bool); ok {
		rec.Force = force
	}
	// Presence of the key is presence of the value, even when empty.
	// The guards decide whether an empty string satisfies them.
	if reason, ok := stringField(payload, "reason"); ok {
		rec.Reason = &reason
	}
	if ref, ok := stringField(payload, "review_ref"); ok {
		rec.ReviewRef = &ref
	}

	return rec, nil
}

func stringField(payload map[string]any, key string) (string, bool) {
	v, ok := payload[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Domain prefix for content-addressed event identity. The version
// suffix leaves room for algorithm migration.
const hashDomain = "weft/event/v1"

// ContentHash computes a domain-separated SHA-256 over the canonical
// JSON form of the full envelope. Two events are structurally equal
// iff their content hashes match.
//
// Format: SHA256(domain + 0x00 + canonical bytes). The null separator
// prevents domain/data boundary ambiguity.
func (e Event) ContentHash() (string, error) {
	canonical, err := MarshalCanonical(e.canonicalMap())
	if err != nil {
		return "", fmt.Errorf("event %s: canonical marshal: %w", e.EventID, err)
	}

	h := sha256.New()
	h.Write([]byte(hashDomain))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalMap renders the envelope as a plain map for canonical
// marshaling. Absent optional fields are omitted rather than encoded
// as sentinels, and the timestamp uses the fixed-width UTC form so the
// same instant always hashes identically.
func (e Event) canonicalMap() map[string]any {
	m := map[string]any{
		"event_id":      e.EventID,
		"event_type":    e.EventType,
		"aggregate_id":  e.AggregateID,
		"timestamp":     FormatTimestamp(e.Timestamp),
		"node_id":       e.NodeID,
		"lamport_clock": e.LamportClock,
	}
	if e.CausationID != "" {
		m["causation_id"] = e.CausationID
	}
	if e.CorrelationID != "" {
		m["correlation_id"] = e.CorrelationID
	}
	if e.Payload != nil {
		m["payload"] = e.Payload
	}
	return m
}

// timestampLayout is a fixed-width UTC ISO 8601 layout. Fixed width
// matters: lexicographic order over the formatted string must equal
// chronological order, which RFC3339Nano breaks by trimming zeros.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// FormatTimestamp renders t in the fixed-width UTC form used for
// hashing and for the total-order sort key.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

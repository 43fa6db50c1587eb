// Package crdt provides the three merge primitives domain reducers use
// to resolve conflicting concurrent writes: grow-only-set union,
// counter sum, and priority-based state selection.
//
// Each merge is a pure fold over an event slice and satisfies the CRDT
// laws: commutative, associative, idempotent. Convergence is therefore
// independent of delivery order. None of the primitives deduplicate -
// dedup by event id is the reduction pipeline's job, which keeps these
// trivially composable (summing a counter twice over the same deduped
// slice is still deterministic; summing a duplicated slice is the
// caller's bug).
package crdt

import (
	"fmt"

	"github.com/weftlog/weft/internal/causal"
	"github.com/weftlog/weft/internal/event"
)

// GrowOnlySet folds events into the union of their extracted add
// values. Nothing is ever removed, so any event ordering produces the
// same set.
func GrowOnlySet[T comparable](events []event.Event, extract func(event.Event) []T) map[T]struct{} {
	out := make(map[T]struct{})
	for _, evt := range events {
		for _, v := range extract(evt) {
			out[v] = struct{}{}
		}
	}
	return out
}

// StringSetField extracts string add-values from a payload field that
// holds either a single string or a list of strings. Convenience for
// the common "labels"/"tags" payload shape.
func StringSetField(field string) func(event.Event) []string {
	return func(evt event.Event) []string {
		switch v := evt.Payload[field].(type) {
		case string:
			return []string{v}
		case []any:
			out := make([]string, 0, len(v))
			for _, elem := range v {
				if s, ok := elem.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return v
		default:
			return nil
		}
	}
}

// Counter folds events into the sum of their signed deltas. Addition
// commutes, so the result is order-independent. Input must already be
// deduplicated by event id.
func Counter(events []event.Event, delta func(event.Event) int64) int64 {
	var sum int64
	for _, evt := range events {
		sum += delta(evt)
	}
	return sum
}

// StateMachine picks, among concurrent candidate states, the one with
// the highest externally supplied priority. Ties break by the
// total-order key, so every replica converges on the same winner. The
// returned Resolution names both the winner and the key that decided
// it, for audit.
//
// Candidates whose state is missing from the priority map lose to any
// mapped candidate; among unmapped candidates the total order decides.
func StateMachine(events []event.Event, priorities map[string]int, state func(event.Event) string) (causal.Resolution, error) {
	if len(events) == 0 {
		return causal.Resolution{}, fmt.Errorf("crdt: state machine merge requires at least one candidate")
	}

	winner := events[0]
	winPrio, winMapped := priorities[state(winner)]
	for _, cand := range events[1:] {
		prio, mapped := priorities[state(cand)]
		switch {
		case mapped && !winMapped:
			winner, winPrio, winMapped = cand, prio, true
		case mapped == winMapped && prio > winPrio:
			winner, winPrio = cand, prio
		case mapped == winMapped && prio == winPrio:
			if causal.Compare(cand, winner) > 0 {
				// Highest key wins the tie: the "latest" event in the
				// deterministic total order is the final write.
				winner = cand
			}
		}
	}

	reason := fmt.Sprintf("priority %d for state %q", winPrio, state(winner))
	if !winMapped {
		reason = fmt.Sprintf("unmapped state %q, total order decided", state(winner))
	}
	return causal.Resolution{
		Winner: winner,
		Key:    causal.TotalOrderKey(winner),
		Reason: reason,
	}, nil
}

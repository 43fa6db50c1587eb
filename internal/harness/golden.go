package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/weftlog/weft/internal/event"
	"github.com/weftlog/weft/internal/lane"
)

// RunWithGolden runs a scenario and compares the projection snapshot
// against testdata/golden/{scenario.Name}.golden.
//
// Snapshots use the same canonical JSON as content hashing, so the
// golden files are byte-stable across runs and machines. Regenerate
// with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, h *Harness, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := h.Run(scenario)
	if err != nil {
		return nil, err
	}

	snapshot, err := event.MarshalCanonical(snapshotMap(result))
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snapshot)
	return result, nil
}

// snapshotMap renders a result as a canonical-JSON-ready map. Zero
// fields are omitted so goldens stay readable; the ones that carry
// meaning at zero (opened, counters) are always present.
func snapshotMap(r *Result) map[string]any {
	m := map[string]any{
		"scenario_name": r.Scenario.Name,
		"mode":          string(r.Mode),
	}
	if r.Err != nil {
		m["error"] = r.Err.Error()
		return m
	}

	st := r.State
	m["event_count"] = st.EventCount
	if st.LastEventID != "" {
		m["last_processed_event_id"] = st.LastEventID
	}
	if len(st.Anomalies) > 0 {
		anomalies := make([]any, len(st.Anomalies))
		for i, a := range st.Anomalies {
			anomalies[i] = map[string]any{
				"event_id": a.EventID,
				"kind":     a.Kind,
				"message":  a.Message,
			}
		}
		m["anomalies"] = anomalies
	}
	m["state"] = statusMap(st.State)
	return m
}

func statusMap(s lane.Status) map[string]any {
	m := map[string]any{
		"opened":           s.Opened,
		"transition_count": s.TransitionCount,
		"reopens":          s.Reopens,
	}
	if s.AggregateID != "" {
		m["aggregate_id"] = s.AggregateID
	}
	if s.Lane != "" {
		m["lane"] = string(s.Lane)
	}
	if s.Actor != "" {
		m["actor"] = s.Actor
	}
	if s.Forced {
		m["forced"] = true
	}
	if len(s.Labels) > 0 {
		labels := make([]any, len(s.Labels))
		for i, l := range s.Labels {
			labels[i] = l
		}
		m["labels"] = labels
	}
	if len(s.History) > 0 {
		history := make([]any, len(s.History))
		for i, step := range s.History {
			sm := map[string]any{
				"event_id": step.EventID,
				"to":       string(step.To),
			}
			if step.From != nil {
				sm["from"] = string(*step.From)
			}
			if step.Forced {
				sm["forced"] = true
			}
			history[i] = sm
		}
		m["history"] = history
	}
	if s.TieBreak != nil {
		m["tie_break"] = map[string]any{
			"event_id": s.TieBreak.EventID,
			"key": map[string]any{
				"clock":     s.TieBreak.Key.Clock,
				"timestamp": s.TieBreak.Key.Timestamp,
				"event_id":  s.TieBreak.Key.EventID,
			},
			"reason": s.TieBreak.Reason,
		}
	}
	return m
}

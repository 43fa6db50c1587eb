package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weftlog/weft/internal/reduce"
)

// Scenario defines a conformance test case: a staged event multiset
// plus expectations on the reduced projection. Scenarios are the
// cross-implementation contract; the golden snapshot of each one is
// the byte-level source of truth.
type Scenario struct {
	// Name uniquely identifies this scenario. It doubles as the golden
	// file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Mode is the reduction mode: "strict" (default) or "permissive".
	Mode string `yaml:"mode,omitempty"`

	// Events is the staged input multiset. Order here is deliberately
	// not meaningful - reduction sorts by total-order key.
	Events []EventSpec `yaml:"events"`

	// Expect holds assertions on the reduced result.
	Expect Expectation `yaml:"expect"`
}

// EventSpec stages one event. Timestamp is optional RFC 3339; events
// without one get a fixed base instant stepped one millisecond per
// list position, so scenario files stay terse and deterministic.
type EventSpec struct {
	EventID      string         `yaml:"event_id"`
	EventType    string         `yaml:"event_type"`
	AggregateID  string         `yaml:"aggregate_id"`
	NodeID       string         `yaml:"node_id"`
	LamportClock uint64         `yaml:"lamport_clock"`
	Timestamp    string         `yaml:"timestamp,omitempty"`
	Payload      map[string]any `yaml:"payload,omitempty"`
}

// Expectation asserts on the reduced result. Numeric fields are
// pointers so "expect zero" and "don't check" stay distinguishable.
// All checks are optional; an empty expectation only asserts that
// reduction did not error.
type Expectation struct {
	Lane            string   `yaml:"lane,omitempty"`
	TransitionCount *int     `yaml:"transition_count,omitempty"`
	Reopens         *int64   `yaml:"reopens,omitempty"`
	Labels          []string `yaml:"labels,omitempty"`
	EventCount      *int     `yaml:"event_count,omitempty"`
	LastEventID     string   `yaml:"last_event_id,omitempty"`
	Anomalies       *int     `yaml:"anomalies,omitempty"`
	AnomalyKinds    []string `yaml:"anomaly_kinds,omitempty"`
	TieBreakWinner  string   `yaml:"tie_break_winner,omitempty"`

	// ErrorContains asserts that reduction failed and the error message
	// contains this substring. Mutually exclusive with the state checks.
	ErrorContains string `yaml:"error_contains,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so a typo like "expects:" fails loudly instead of
// silently asserting nothing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parsing scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// FindScenarios returns the sorted paths of all .yaml files directly
// under dir.
func FindScenarios(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading scenario dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".yaml" {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	return paths, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Mode != "" {
		if _, err := reduce.ParseMode(s.Mode); err != nil {
			return err
		}
	}
	if len(s.Events) == 0 {
		return fmt.Errorf("events list is required and must be non-empty")
	}

	for i, evt := range s.Events {
		switch {
		case evt.EventID == "":
			return fmt.Errorf("events[%d]: event_id is required", i)
		case evt.EventType == "":
			return fmt.Errorf("events[%d]: event_type is required", i)
		case evt.AggregateID == "":
			return fmt.Errorf("events[%d]: aggregate_id is required", i)
		case evt.NodeID == "":
			return fmt.Errorf("events[%d]: node_id is required", i)
		case evt.LamportClock == 0:
			return fmt.Errorf("events[%d]: lamport_clock is required and must be positive", i)
		}
		if evt.Timestamp != "" {
			if _, err := time.Parse(time.RFC3339Nano, evt.Timestamp); err != nil {
				return fmt.Errorf("events[%d]: bad timestamp: %w", i, err)
			}
		}
	}

	if s.Expect.ErrorContains != "" && s.Expect.Lane != "" {
		return fmt.Errorf("expect: error_contains and lane are mutually exclusive")
	}
	return nil
}

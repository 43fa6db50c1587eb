package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/weftlog/weft/internal/event"
)

// eventRecord is the on-disk event shape: the envelope fields plus an
// RFC 3339 timestamp string.
type eventRecord struct {
	EventID       string         `json:"event_id" yaml:"event_id"`
	EventType     string         `json:"event_type" yaml:"event_type"`
	AggregateID   string         `json:"aggregate_id" yaml:"aggregate_id"`
	Timestamp     string         `json:"timestamp" yaml:"timestamp"`
	NodeID        string         `json:"node_id" yaml:"node_id"`
	LamportClock  uint64         `json:"lamport_clock" yaml:"lamport_clock"`
	CausationID   string         `json:"causation_id,omitempty" yaml:"causation_id,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	Payload       map[string]any `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// LoadEvents reads an event log file: a JSON or YAML array of event
// records, picked by extension (.json, .yaml, .yml).
func LoadEvents(path string) ([]event.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading events file: %w", err)
	}

	var records []eventRecord
	switch ext := filepath.Ext(path); ext {
	case ".json":
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported events file extension %q (want .json, .yaml, or .yml)", ext)
	}

	events := make([]event.Event, 0, len(records))
	for i, rec := range records {
		ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("events[%d] (%s): bad timestamp: %w", i, rec.EventID, err)
		}
		evt, err := event.New(rec.EventID, rec.EventType, rec.AggregateID,
			rec.NodeID, rec.LamportClock, ts, rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
		evt = evt.WithCausation(rec.CausationID, rec.CorrelationID)
		events = append(events, evt)
	}
	return events, nil
}

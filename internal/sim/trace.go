package sim

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/signalsfoundry/socleer/model"
)

// EventType is the kind of a trace event.
type EventType string

const (
	// EventUp opens a contact between A and B.
	EventUp EventType = "up"
	// EventDown closes the contact between A and B.
	EventDown EventType = "down"
	// EventMessage creates message ID at A for destination B.
	EventMessage EventType = "message"
)

// Event is one timed trace entry.
type Event struct {
	At   time.Duration
	Type EventType
	A, B model.NodeID
	ID   string
}

// Trace is a contact trace: the node population and its events in time order.
type Trace struct {
	Start  time.Time
	Nodes  []model.NodeID
	Events []Event
}

// End is the time of the last event.
func (t *Trace) End() time.Duration {
	if len(t.Events) == 0 {
		return 0
	}
	return t.Events[len(t.Events)-1].At
}

// internal JSON shapes.
type traceJSON struct {
	Start  *time.Time     `json:"start"`
	Nodes  []uint64       `json:"nodes"`
	Events []traceEventJS `json:"events"`
}

type traceEventJS struct {
	Time float64 `json:"time"` // seconds since start
	Type string  `json:"type"` // "up" | "down" | "message"
	A    uint64  `json:"a"`
	B    uint64  `json:"b"`
	ID   string  `json:"id"` // message events only
}

// LoadTraceFile reads a JSON trace from path.
func LoadTraceFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("LoadTraceFile: %w", err)
	}
	defer f.Close()
	return LoadTrace(f)
}

// LoadTrace reads a JSON trace from r, validates it, and orders its events
// by time. Events at the same time keep their file order.
func LoadTrace(r io.Reader) (*Trace, error) {
	var payload traceJSON
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return nil, fmt.Errorf("LoadTrace: decode failed: %w", err)
	}

	tr := &Trace{
		Nodes:  make([]model.NodeID, 0, len(payload.Nodes)),
		Events: make([]Event, 0, len(payload.Events)),
	}
	if payload.Start != nil {
		tr.Start = payload.Start.UTC()
	}

	known := model.NodeSet{}
	for _, n := range payload.Nodes {
		id, err := model.CheckNodeID(n)
		if err != nil {
			return nil, fmt.Errorf("LoadTrace: %w", err)
		}
		if known.Contains(id) {
			return nil, fmt.Errorf("LoadTrace: duplicate node %s", id)
		}
		known.Add(id)
		tr.Nodes = append(tr.Nodes, id)
	}

	messages := make(map[string]struct{})
	for i, js := range payload.Events {
		a, aerr := model.CheckNodeID(js.A)
		b, berr := model.CheckNodeID(js.B)
		if err := errors.Join(aerr, berr); err != nil {
			return nil, fmt.Errorf("LoadTrace: event %d: %w", i, err)
		}
		ev := Event{
			At:   time.Duration(js.Time * float64(time.Second)),
			Type: EventType(js.Type),
			A:    a,
			B:    b,
			ID:   js.ID,
		}
		if js.Time < 0 {
			return nil, fmt.Errorf("LoadTrace: event %d: negative time %v", i, js.Time)
		}
		switch ev.Type {
		case EventUp, EventDown:
		case EventMessage:
			if ev.ID == "" {
				return nil, fmt.Errorf("LoadTrace: event %d: message with empty id", i)
			}
			if _, dup := messages[ev.ID]; dup {
				return nil, fmt.Errorf("LoadTrace: event %d: duplicate message id %q", i, ev.ID)
			}
			messages[ev.ID] = struct{}{}
		default:
			return nil, fmt.Errorf("LoadTrace: event %d: unknown type %q", i, js.Type)
		}
		if ev.A == ev.B {
			return nil, fmt.Errorf("LoadTrace: event %d: node %s paired with itself", i, ev.A)
		}
		if !known.Contains(ev.A) || !known.Contains(ev.B) {
			return nil, fmt.Errorf("LoadTrace: event %d: undeclared node in %s-%s", i, ev.A, ev.B)
		}
		tr.Events = append(tr.Events, ev)
	}

	slices.SortStableFunc(tr.Events, func(a, b Event) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		}
		return 0
	})
	return tr, nil
}

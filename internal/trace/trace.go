package trace

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrDuplicateToolCallID is returned by NewTrace in Strict mode when two
// ToolCalls in the same trace share an id (trace invariant 2).
var ErrDuplicateToolCallID = errors.New("duplicate ToolCall id")

// Mode controls how NewTrace reacts to malformed input: in Lax mode
// (default) structural problems are reported as Warnings; in Strict mode
// they are returned as an error.
type Mode int

const (
	Lax Mode = iota
	Strict
)

// Trace is the ordered sequence of top-level events (Messages and
// ToolOutputs) that make up an agent session, plus id-indexed side tables
// used to resolve ToolCall/ToolOutput pairs and dataflow edges without
// introducing cycles into the event tree itself.
type Trace struct {
	Events []*Event // top-level only; ToolCalls are reached via their parent Message

	byID         map[EventID]*Event
	byToolCallID map[string]*Event
}

// NewTrace assigns a stable Index to every top-level event (and, for
// Messages, to their nested ToolCalls), validates the trace invariants,
// and builds the id indexes used by dataflow resolution. The caller's
// Event values are not mutated beyond assigning Index and, for events
// without one, ID.
func NewTrace(events []*Event, mode Mode) (*Trace, []*Warning, error) {
	t := &Trace{
		Events:       nil,
		byID:         make(map[EventID]*Event),
		byToolCallID: make(map[string]*Event),
	}
	warnings, err := t.Extend(events, mode)
	if err != nil {
		return nil, nil, err
	}
	return t, warnings, nil
}

// Extend assigns Index/ID to newEvents, appends them to t.Events, and
// validates only the invariants newEvents could have introduced (duplicate
// ToolCall ids, orphan tool_call_id references) against the combined id
// tables. It never revisits events already committed by an earlier
// NewTrace or Extend call, which is what lets a Graph built over t stay
// valid as the monitor grows the trace one batch at a time: an event's
// Index never changes once assigned, so cached dataflow edges for it
// remain correct no matter what gets appended afterward.
func (t *Trace) Extend(newEvents []*Event, mode Mode) ([]*Warning, error) {
	start := len(t.Events)
	var warnings []*Warning

	for i, e := range newEvents {
		idx := start + i
		e.Index = idx
		if e.ID == "" {
			e.ID = EventID(uuid.NewString())
		}
		t.byID[e.ID] = e

		if e.Kind == KindMessage {
			for _, tc := range e.ToolCalls {
				tc.Parent = e
				tc.Index = idx // shares the parent Message's position in the top-level order
				if tc.ID == "" {
					tc.ID = EventID(uuid.NewString())
				}
				t.byID[tc.ID] = tc

				if tc.ToolCallID != "" {
					if _, dup := t.byToolCallID[tc.ToolCallID]; dup {
						w := &Warning{
							Kind:    WarningTraceInput,
							Message: fmt.Sprintf("duplicate ToolCall id %q", tc.ToolCallID),
							EventID: tc.ID,
						}
						if mode == Strict {
							return nil, fmt.Errorf("%w: %q", ErrDuplicateToolCallID, tc.ToolCallID)
						}
						warnings = append(warnings, w)
					}
					t.byToolCallID[tc.ToolCallID] = tc
				}
			}
		}
	}

	t.Events = append(t.Events, newEvents...)

	// Invariant 1: every ToolOutput's tool_call_id must refer to an
	// earlier ToolCall. Unmatched outputs are tolerated but flagged.
	for _, e := range newEvents {
		if e.Kind != KindToolOutput {
			continue
		}
		call, ok := t.byToolCallID[e.OutputToolCallID]
		if !ok || call.Index >= e.Index {
			w := &Warning{
				Kind:    WarningTraceInput,
				Message: fmt.Sprintf("ToolOutput references unmatched or out-of-order tool_call_id %q", e.OutputToolCallID),
				EventID: e.ID,
			}
			if mode == Strict {
				return nil, fmt.Errorf("trace input error: %s", w.Message)
			}
			warnings = append(warnings, w)
		}
	}

	return warnings, nil
}

// ByID looks up an event by its identity.
func (t *Trace) ByID(id EventID) (*Event, bool) {
	e, ok := t.byID[id]
	return e, ok
}

// ToolCallByID looks up the ToolCall with the given wire id.
func (t *Trace) ToolCallByID(id string) (*Event, bool) {
	e, ok := t.byToolCallID[id]
	return e, ok
}

// AllEvents returns every event in the trace, including ToolCalls nested
// inside Messages, in a single flat slice ordered by Index then by
// ToolCall position within its parent (ToolCalls immediately follow their
// parent Message). Used by generators that quantify over "all events of a
// kind".
func (t *Trace) AllEvents() []*Event {
	var all []*Event
	for _, e := range t.Events {
		all = append(all, e)
		if e.Kind == KindMessage {
			all = append(all, e.ToolCalls...)
		}
	}
	return all
}

// wireEvent is the JSON shape accepted by DecodeJSON, matching the trace
// data model's Message/ToolCall/ToolOutput variants.
type wireEvent struct {
	Role       string          `json:"role"`
	Content    json.RawMessage `json:"content"`
	ToolCalls  []wireToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
	AgentName  string          `json:"agent_name,omitempty"`
	ID         string          `json:"id,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string                     `json:"name"`
		Arguments map[string]json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// DecodeJSON decodes a JSON array of trace events matching the §3 wire
// format into Events. Unknown roles pass through unchanged; content may
// be a JSON string or an arbitrary object.
func DecodeJSON(data []byte) ([]*Event, error) {
	var raw []wireEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding trace: %w", err)
	}

	events := make([]*Event, 0, len(raw))
	for _, we := range raw {
		e, err := decodeOne(we)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

func decodeOne(we wireEvent) (*Event, error) {
	if we.Role == "tool" && we.ToolCallID != "" {
		content, err := decodeValue(we.Content)
		if err != nil {
			return nil, err
		}
		return &Event{
			ID:               EventID(we.ID),
			Kind:             KindToolOutput,
			Role:             we.Role,
			OutputToolCallID: we.ToolCallID,
			OutputContent:    content,
		}, nil
	}

	content, err := decodeValue(we.Content)
	if err != nil {
		return nil, err
	}

	e := &Event{
		ID:        EventID(we.ID),
		Kind:      KindMessage,
		Role:      we.Role,
		Content:   content,
		AgentName: we.AgentName,
	}

	for _, wtc := range we.ToolCalls {
		args := make(map[string]Value, len(wtc.Function.Arguments))
		for k, v := range wtc.Function.Arguments {
			val, err := decodeValue(v)
			if err != nil {
				return nil, err
			}
			args[k] = val
		}
		e.ToolCalls = append(e.ToolCalls, &Event{
			ID:         EventID(wtc.ID),
			Kind:       KindToolCall,
			ToolCallID: wtc.ID,
			ToolName:   wtc.Function.Name,
			Arguments:  args,
		})
	}

	return e, nil
}

func decodeValue(raw json.RawMessage) (Value, error) {
	if len(raw) == 0 {
		return Null, nil
	}
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, fmt.Errorf("decoding content: %w", err)
	}
	return v, nil
}

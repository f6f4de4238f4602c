package trace

// Kind discriminates the three event variants of the trace data model.
type Kind int

const (
	KindMessage Kind = iota
	KindToolCall
	KindToolOutput
)

// String renders the kind the way rule type names are spelled in policy
// source (Message, ToolCall, ToolOutput).
func (k Kind) String() string {
	switch k {
	case KindMessage:
		return "Message"
	case KindToolCall:
		return "ToolCall"
	case KindToolOutput:
		return "ToolOutput"
	default:
		return "Event"
	}
}

// EventID is a stable, cheap-to-compare identity for an Event. Callers may
// supply their own (e.g. a ToolCall's wire "id"); events without one are
// assigned a synthetic uuid on ingest.
type EventID string

// Event is the tagged union of Message, ToolCall, and ToolOutput described
// in the trace data model. Rather than probing an attribute bag, callers
// switch on Kind and read the fields relevant to that variant; fields that
// don't apply to the current Kind are simply left at their zero value.
type Event struct {
	ID    EventID
	Kind  Kind
	Index int // position assigned by NewTrace; -1 until then

	// Message fields (Kind == KindMessage).
	Role      string
	Content   Value
	ToolCalls []*Event // nested ToolCall events, Parent set to this Message
	AgentName string    // optional, multi-agent traces

	// ToolCall fields (Kind == KindToolCall). Only reachable through a
	// parent Message's ToolCalls slice.
	ToolCallID string
	ToolName   string
	Arguments  map[string]Value

	// ToolOutput fields (Kind == KindToolOutput).
	OutputToolCallID string
	OutputContent    Value

	// Parent is the Message a ToolCall is nested in. Nil for top-level
	// Message and ToolOutput events.
	Parent *Event
}

// TextContent concatenates all text found in Content, resolving a
// structured content-block list (text/image/tool-result blocks, as used
// by multi-modal traces) down to its text portions. For a plain string
// Content it returns the string unchanged.
func (e *Event) TextContent() string {
	if s, ok := e.Content.AsString(); ok {
		return s
	}
	blocks, ok := e.Content.AsList()
	if !ok {
		return ""
	}
	out := ""
	for _, b := range blocks {
		m, ok := b.AsMap()
		if !ok {
			continue
		}
		if t, ok := m["type"]; ok {
			if ts, _ := t.AsString(); ts != "text" {
				continue
			}
		}
		if txt, ok := m["text"]; ok {
			if s, ok := txt.AsString(); ok {
				out += s
			}
		}
	}
	return out
}

// IsEvent reports whether e satisfies the given type name as used in
// policy variable declarations ("Event" matches any kind).
func (e *Event) IsEvent(typeName string) bool {
	switch typeName {
	case "Event":
		return true
	case "Message":
		return e.Kind == KindMessage
	case "ToolCall":
		return e.Kind == KindToolCall
	case "ToolOutput":
		return e.Kind == KindToolOutput
	default:
		return false
	}
}

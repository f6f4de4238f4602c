package trace

import "testing"

func testTrace(t *testing.T) *Trace {
	inbox := &Event{Kind: KindMessage, Role: "assistant", ToolCalls: []*Event{
		{Kind: KindToolCall, ToolCallID: "call_1", ToolName: "get_inbox", Arguments: map[string]Value{}},
	}}
	inboxOut := &Event{Kind: KindToolOutput, Role: "tool", OutputToolCallID: "call_1", OutputContent: NewValue("Hi from Peter. Reply to peter@example.com")}
	send := &Event{Kind: KindMessage, Role: "assistant", ToolCalls: []*Event{
		{Kind: KindToolCall, ToolCallID: "call_2", ToolName: "send_email", Arguments: map[string]Value{
			"to": NewValue("Attacker"),
		}},
	}}

	tr, warnings, err := NewTrace([]*Event{inbox, inboxOut, send}, Lax)
	if err != nil {
		t.Fatalf("NewTrace: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	return tr
}

func TestNewTrace_AssignsIndexAndIDs(t *testing.T) {
	tr := testTrace(t)
	if len(tr.Events) != 3 {
		t.Fatalf("got %d top-level events, want 3", len(tr.Events))
	}
	for i, e := range tr.Events {
		if e.Index != i {
			t.Errorf("event %d: Index = %d, want %d", i, e.Index, i)
		}
		if e.ID == "" {
			t.Errorf("event %d: ID not assigned", i)
		}
	}
}

func TestNewTrace_ToolCallLookup(t *testing.T) {
	tr := testTrace(t)
	call, ok := tr.ToolCallByID("call_2")
	if !ok {
		t.Fatal("expected to find call_2")
	}
	if call.ToolName != "send_email" {
		t.Errorf("ToolName = %q, want send_email", call.ToolName)
	}
	if call.Parent == nil || call.Parent.Role != "assistant" {
		t.Errorf("Parent not set correctly")
	}
}

func TestNewTrace_DuplicateToolCallID(t *testing.T) {
	a := &Event{Kind: KindMessage, Role: "assistant", ToolCalls: []*Event{
		{Kind: KindToolCall, ToolCallID: "dup", ToolName: "a"},
	}}
	b := &Event{Kind: KindMessage, Role: "assistant", ToolCalls: []*Event{
		{Kind: KindToolCall, ToolCallID: "dup", ToolName: "b"},
	}}

	_, warnings, err := NewTrace([]*Event{a, b}, Lax)
	if err != nil {
		t.Fatalf("unexpected error in Lax mode: %v", err)
	}
	if len(warnings) != 1 || warnings[0].Kind != WarningTraceInput {
		t.Fatalf("want one TraceInputError warning, got %v", warnings)
	}

	_, _, err = NewTrace([]*Event{a, b}, Strict)
	if err == nil {
		t.Fatal("want error in Strict mode")
	}
}

func TestNewTrace_UnmatchedToolOutput(t *testing.T) {
	orphan := &Event{Kind: KindToolOutput, Role: "tool", OutputToolCallID: "missing"}
	_, warnings, err := NewTrace([]*Event{orphan}, Lax)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("want one warning, got %v", warnings)
	}
}

func TestDecodeJSON_RoundTrips(t *testing.T) {
	data := []byte(`[
		{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"search_web","arguments":{"q":"bob@mail.com wants Paris"}}}]},
		{"role":"tool","tool_call_id":"call_1","content":"ok"}
	]`)

	events, err := DecodeJSON(data)
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Kind != KindMessage || len(events[0].ToolCalls) != 1 {
		t.Fatalf("first event not decoded as Message with one ToolCall: %+v", events[0])
	}
	q := events[0].ToolCalls[0].Arguments["q"]
	if s, _ := q.AsString(); s != "bob@mail.com wants Paris" {
		t.Errorf("arguments.q = %q", s)
	}
	if events[1].Kind != KindToolOutput || events[1].OutputToolCallID != "call_1" {
		t.Fatalf("second event not decoded as ToolOutput: %+v", events[1])
	}
}

// Package api holds wire-level JSON types shared with any process
// embedding tracewatch as a library: the shapes a CLI invocation prints
// as JSON, and the shapes an external caller would post a trace in as.
// It mirrors internal/trace and internal/eval's types rather than
// re-exporting them directly, the way the teacher's api package mirrored
// internal/policy's types for its proxy wire format.
package api

import "encoding/json"

// TraceEvent is the wire shape trace.DecodeJSON parses: a single message,
// with any tool calls it makes nested inline, or a tool's output keyed by
// the tool_call_id it answers.
type TraceEvent struct {
	ID         string           `json:"id,omitempty"`
	Role       string           `json:"role"`
	Content    json.RawMessage  `json:"content,omitempty"`
	ToolCalls  []TraceToolCall  `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	AgentName  string           `json:"agent_name,omitempty"`
}

// TraceToolCall is the wire shape of a single tool invocation nested
// inside a TraceEvent's tool_calls list.
type TraceToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string                     `json:"name"`
		Arguments map[string]json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// Range is the wire mirror of trace.Range: the event and, optionally, the
// json_path and character span within it that a violation is localized
// to.
type Range struct {
	ObjectID string `json:"object_id"`
	JSONPath string `json:"json_path,omitempty"`
	Start    *int   `json:"start,omitempty"`
	End      *int   `json:"end,omitempty"`
}

// PolicyViolation is the wire mirror of eval.PolicyViolation.
type PolicyViolation struct {
	ID      string         `json:"id"`
	Kind    string         `json:"kind"`
	Name    string         `json:"name"`
	Message string         `json:"message"`
	Args    map[string]any `json:"args,omitempty"`
	Ranges  []Range        `json:"ranges,omitempty"`
}

// Warning is the wire mirror of trace.Warning.
type Warning struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	EventID string `json:"event_id,omitempty"`
}

// AnalysisResult is the wire mirror of eval.AnalysisResult, the shape the
// CLI's `scan --format json` and `watch` subcommands print.
type AnalysisResult struct {
	Errors        []PolicyViolation `json:"errors,omitempty"`
	HandledErrors []PolicyViolation `json:"handled_errors,omitempty"`
	Warnings      []Warning         `json:"warnings,omitempty"`
	Cancelled     bool              `json:"cancelled,omitempty"`
}

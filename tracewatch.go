// Package tracewatch is the public entry point for embedding the policy
// engine: compile a policy, analyze a complete trace against it, or wrap
// it in a Monitor to evaluate a trace incrementally as it grows.
package tracewatch

import (
	"github.com/tracesec/tracewatch/internal/detect"
	"github.com/tracesec/tracewatch/internal/eval"
	"github.com/tracesec/tracewatch/internal/monitor"
	"github.com/tracesec/tracewatch/internal/trace"
)

// Policy is a parsed and compiled rule set, ready to Analyze traces.
type Policy = eval.Policy

// ErrorHandler inspects a raised PolicyViolation and decides whether it's
// been dealt with. See eval.ErrorHandler.
type ErrorHandler = eval.ErrorHandler

// PolicyViolation is a single satisfied rule body, localized to the part
// of the trace that triggered it.
type PolicyViolation = eval.PolicyViolation

// AnalysisResult is the outcome of evaluating a policy against a trace.
type AnalysisResult = eval.AnalysisResult

// Monitor evaluates a policy incrementally over a trace that grows one
// batch of pending events at a time.
type Monitor = monitor.Monitor

// Options configures a Monitor's behavior.
type Options = monitor.Options

// BlockingViolation is returned by Monitor.Check when RaiseUnhandled is
// set and a new violation implicates the events just submitted.
type BlockingViolation = monitor.BlockingViolation

// Event is one node of a trace: a Message, ToolCall, or ToolOutput.
type Event = trace.Event

// Value is the recursive JSON-like value type carried in tool arguments
// and outputs.
type Value = trace.Value

// Trace is a parsed, validated sequence of Events.
type Trace = trace.Trace

// Warning is a non-fatal issue encountered ingesting or evaluating a trace.
type Warning = trace.Warning

// DetectorTable resolves named content detectors used by `detect` calls
// and classifier predicates in policy source.
type DetectorTable = detect.DetectorTable

// CompilePolicy parses and compiles source against the built-in detector
// set.
func CompilePolicy(source string) (*Policy, error) {
	return eval.CompilePolicy(source)
}

// CompilePolicyWithDetectors is CompilePolicy with a caller-supplied
// detector table.
func CompilePolicyWithDetectors(source string, detectors DetectorTable) (*Policy, error) {
	return eval.CompilePolicyWithDetectors(source, detectors)
}

// NewMonitor starts a Monitor with no committed history.
func NewMonitor(p *Policy, opts Options) *Monitor {
	return monitor.NewMonitor(p, opts)
}

// DecodeJSON decodes a JSON array of trace events in the wire format
// (Message/ToolCall/ToolOutput) into Events.
func DecodeJSON(data []byte) ([]*Event, error) {
	return trace.DecodeJSON(data)
}

// NewTrace validates events and assigns them stable Index/ID values,
// returning any structural Warnings found (or an error, in trace.Strict
// mode).
func NewTrace(events []*Event, mode trace.Mode) (*Trace, []*Warning, error) {
	return trace.NewTrace(events, mode)
}

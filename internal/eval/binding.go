// Package eval runs a compiled policy against a trace: generate-and-filter
// execution of each rule's plan, binding construction, Range accumulation,
// and the handler-dispatch / AnalysisResult surface spec.md §6 exposes as
// a library API.
package eval

import "github.com/tracesec/tracewatch/internal/trace"

// Binding maps a rule variable to what it's currently bound to: a
// *trace.Event for VarBindings quantified over Message/ToolCall/
// ToolOutput/Event domains, or a trace.Value for VarBindings iterating a
// dict/list-typed domain expression.
type Binding map[string]any

func (b Binding) event(name string) (*trace.Event, bool) {
	e, ok := b[name].(*trace.Event)
	return e, ok
}

func (b Binding) value(name string) (trace.Value, bool) {
	v, ok := b[name].(trace.Value)
	return v, ok
}

// extend returns a copy of b with name bound to val, leaving b itself
// untouched so sibling branches of the search tree don't see each
// other's bindings.
func (b Binding) extend(name string, val any) Binding {
	out := make(Binding, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[name] = val
	return out
}

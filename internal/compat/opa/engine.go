// Package opa is an alternate rules.Engine backend: it evaluates a trace
// against a Rego module instead of the native policy DSL, for deployments
// that have already standardized on Rego for other policy surfaces.
package opa

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	opaast "github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/open-policy-agent/opa/topdown"

	"github.com/google/uuid"

	"github.com/tracesec/tracewatch/internal/eval"
	"github.com/tracesec/tracewatch/internal/rules"
	"github.com/tracesec/tracewatch/internal/trace"
)

var _ rules.Engine = (*Engine)(nil)

// Engine evaluates Rego modules written against the tracewatch input
// contract (see Analyze). It implements internal/rules.Engine.
type Engine struct {
	mu    sync.RWMutex
	path  string
	query rego.PreparedEvalQuery
}

// New creates an Engine from a .rego policy file on disk.
func New(path string) (*Engine, error) {
	e := &Engine{path: path}
	if err := e.Reload(context.Background()); err != nil {
		return nil, err
	}
	return e, nil
}

// NewFromSource creates an Engine from raw Rego source.
func NewFromSource(source string) (*Engine, error) {
	e := &Engine{}
	if err := e.loadSource(source); err != nil {
		return nil, err
	}
	return e, nil
}

// Analyze runs the compiled Rego module's `data.tracewatch.violations`
// query against t's events and translates each returned object into a
// PolicyViolation.
//
// The module must define, in package tracewatch:
//
//	violations contains v if {
//	    some e in input.events
//	    ...
//	    v := {"name": "leak", "message": "...", "event_index": e.index}
//	}
//
// input.events is every event in t (including nested ToolCalls)
// flattened to a list of dicts: index, kind ("message"|"tool_call"|
// "tool_output"), role, content, tool_name, arguments, tool_call_id,
// output_tool_call_id, output_content. params are not exposed to Rego
// modules; free parameters are a native-DSL feature (spec.md §6).
func (e *Engine) Analyze(ctx context.Context, t *trace.Trace, _ map[string]trace.Value) (*eval.AnalysisResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := map[string]any{"events": encodeEvents(t)}

	rs, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		if topdown.IsError(err) {
			return &eval.AnalysisResult{}, nil
		}
		return nil, fmt.Errorf("rego evaluation failed: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return &eval.AnalysisResult{}, nil
	}

	raw, ok := rs[0].Expressions[0].Value.([]any)
	if !ok {
		return &eval.AnalysisResult{}, nil
	}

	res := &eval.AnalysisResult{}
	for _, item := range raw {
		v, ok := item.(map[string]any)
		if !ok {
			continue
		}
		res.Errors = append(res.Errors, violationFrom(t, v))
	}
	return res, nil
}

// Reload re-reads the Rego policy file from disk and recompiles.
func (e *Engine) Reload(_ context.Context) error {
	if e.path == "" {
		return nil
	}
	data, err := os.ReadFile(e.path)
	if err != nil {
		return fmt.Errorf("reading rego policy file: %w", err)
	}
	return e.loadSource(string(data))
}

func (e *Engine) loadSource(source string) error {
	if _, err := opaast.ParseModuleWithOpts("policy.rego", source, opaast.ParserOptions{RegoVersion: opaast.RegoV1}); err != nil {
		return fmt.Errorf("parsing rego policy: %w", err)
	}

	r := rego.New(
		rego.Query("data.tracewatch.violations"),
		rego.Module("policy.rego", source),
		rego.Store(inmem.New()),
	)

	query, err := r.PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("preparing rego query: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.query = query
	return nil
}

func kindName(k trace.Kind) string {
	switch k {
	case trace.KindMessage:
		return "message"
	case trace.KindToolCall:
		return "tool_call"
	case trace.KindToolOutput:
		return "tool_output"
	default:
		return "event"
	}
}

func encodeEvents(t *trace.Trace) []map[string]any {
	var out []map[string]any
	for _, e := range t.AllEvents() {
		d := map[string]any{
			"index": e.Index,
			"kind":  kindName(e.Kind),
		}
		switch e.Kind {
		case trace.KindMessage:
			d["role"] = e.Role
			d["content"] = e.Content.Raw()
			if e.AgentName != "" {
				d["agent_name"] = e.AgentName
			}
		case trace.KindToolCall:
			d["tool_call_id"] = e.ToolCallID
			d["tool_name"] = e.ToolName
			args := make(map[string]any, len(e.Arguments))
			for k, v := range e.Arguments {
				args[k] = v.Raw()
			}
			d["arguments"] = args
		case trace.KindToolOutput:
			d["output_tool_call_id"] = e.OutputToolCallID
			d["output_content"] = e.OutputContent.Raw()
		}
		out = append(out, d)
	}
	return out
}

func violationFrom(t *trace.Trace, v map[string]any) *eval.PolicyViolation {
	name, _ := v["name"].(string)
	msg, _ := v["message"].(string)

	args := map[string]any{}
	if a, ok := v["args"].(map[string]any); ok {
		args = a
	}

	var ranges []trace.Range
	if idxAny, ok := v["event_index"]; ok {
		if idx, ok := asInt(idxAny); ok {
			for _, e := range t.AllEvents() {
				if e.Index == idx {
					ranges = append(ranges, trace.NewRange(e))
					break
				}
			}
		}
	}

	return &eval.PolicyViolation{
		ID:      uuid.NewString(),
		Kind:    "PolicyViolation",
		Name:    name,
		Message: msg,
		Args:    args,
		Ranges:  ranges,
	}
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	default:
		return 0, false
	}
}

package eval

import (
	"context"

	"github.com/tracesec/tracewatch/internal/detect"
	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/rules/compiler"
	"github.com/tracesec/tracewatch/internal/rules/parser"
	"github.com/tracesec/tracewatch/internal/trace"
	"github.com/tracesec/tracewatch/internal/trace/flow"
)

// ErrorHandler inspects a PolicyViolation raised for the given Name and
// decides whether it's been dealt with — e.g. by asking a human, applying
// a rewrite, or just logging it. A handler that returns handled=false
// leaves the violation in AnalysisResult.Errors; handled=true moves it to
// HandledErrors instead, carrying outcome alongside it.
type ErrorHandler func(ctx context.Context, v *PolicyViolation) (handled bool, outcome any)

// Policy is a parsed and compiled rule set, bound to zero or more
// ErrorHandlers, ready to Analyze traces.
type Policy struct {
	compiled       *compiler.CompiledPolicy
	detectors      detect.DetectorTable
	handlers       map[string]ErrorHandler
	raiseUnhandled bool
}

// CompilePolicy parses and compiles source, resolving detector and
// predicate calls against the built-in detector set.
func CompilePolicy(source string) (*Policy, error) {
	return CompilePolicyWithDetectors(source, detect.NewTable(detect.DefaultDetectors()...))
}

// CompilePolicyWithDetectors is CompilePolicy with a caller-supplied
// detector table, for embedders that want to restrict, extend, or stub
// the detectors a policy's classifiers and calls can resolve.
func CompilePolicyWithDetectors(source string, detectors detect.DetectorTable) (*Policy, error) {
	pol, err := parser.ParsePolicy("policy", source)
	if err != nil {
		return nil, err
	}
	compiled, err := compiler.New(detectors).Compile(pol)
	if err != nil {
		return nil, err
	}
	return &Policy{
		compiled:  compiled,
		detectors: detectors,
		handlers:  make(map[string]ErrorHandler),
	}, nil
}

// RegisterHandler binds h to every violation raised under the given
// error name (the identifier after `raise` in the policy source).
func (p *Policy) RegisterHandler(name string, h ErrorHandler) {
	p.handlers[name] = h
}

// SetRaiseUnhandled toggles whether Analyze (and any Monitor built on
// this policy) routes violations through registered handlers (false,
// the default) or always leaves them unhandled so the caller sees every
// violation raised, per the "Classify" step of spec.md §9.
func (p *Policy) SetRaiseUnhandled(raise bool) {
	p.raiseUnhandled = raise
}

// RaiseUnhandled reports the current RaiseUnhandled setting.
func (p *Policy) RaiseUnhandled() bool {
	return p.raiseUnhandled
}

// Compiled returns the policy's compiled rule set, for callers — namely
// internal/monitor — that need to drive Evaluate directly against an
// EvalContext they build and reuse themselves instead of going through
// Analyze's per-call Graph.
func (p *Policy) Compiled() *compiler.CompiledPolicy {
	return p.compiled
}

// Detectors returns the detector table the policy was compiled against.
func (p *Policy) Detectors() detect.DetectorTable {
	return p.detectors
}

// Preds returns the policy's named predicate definitions, keyed by name.
func (p *Policy) Preds() map[string]*ast.PredicateDef {
	return p.compiled.Preds
}

// Analyze runs the compiled policy against t, with params bound as the
// rule body's free parameters (spec.md §6's caller-supplied arguments),
// then routes every violation through a matching ErrorHandler before
// returning the final AnalysisResult.
func (p *Policy) Analyze(ctx context.Context, t *trace.Trace, params map[string]trace.Value) (*AnalysisResult, error) {
	graph := flow.NewGraph(t)
	ec := &EvalContext{
		Trace:     t,
		Graph:     graph,
		Detectors: p.detectors,
		Preds:     p.compiled.Preds,
		Params:    params,
	}

	res, err := Evaluate(ctx, ec, p.compiled)
	if err != nil {
		return nil, err
	}

	p.Classify(ctx, res)
	return res, nil
}

// Classify routes every violation in res.Errors through a matching
// ErrorHandler, moving handled ones to res.HandledErrors — the
// "Classify" step of spec.md §9 step 3: "if pol.Handlers[kind] is set
// and !RaiseUnhandled, route through the handler... otherwise append to
// result.Errors." When RaiseUnhandled is set, every violation is left in
// res.Errors untouched, so a caller driving evaluation incrementally
// (internal/monitor) can apply the same classification its handlers
// would get from Analyze.
func (p *Policy) Classify(ctx context.Context, res *AnalysisResult) {
	if p.raiseUnhandled || len(p.handlers) == 0 {
		return
	}

	var unhandled []*PolicyViolation
	for _, v := range res.Errors {
		h, ok := p.handlers[v.Name]
		if !ok {
			unhandled = append(unhandled, v)
			continue
		}
		if handled, _ := h(ctx, v); handled {
			res.HandledErrors = append(res.HandledErrors, v)
			continue
		}
		unhandled = append(unhandled, v)
	}
	res.Errors = unhandled
}

package eval

import (
	"context"
	"sort"

	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/rules/compiler"
	"github.com/tracesec/tracewatch/internal/rules/match"
	"github.com/tracesec/tracewatch/internal/trace"
)

// Evaluate runs every rule in pol against ec's trace, in source order, and
// collects every fully satisfying binding as a PolicyViolation. A
// cancelled context stops the walk early and sets AnalysisResult.Cancelled
// rather than returning a partial error.
func Evaluate(ctx context.Context, ec *EvalContext, pol *compiler.CompiledPolicy) (*AnalysisResult, error) {
	res := &AnalysisResult{}
	for _, rule := range pol.Rules {
		if ec.cancelled() {
			res.Cancelled = true
			return res, nil
		}
		pc := newPatternCache()
		search(ctx, ec, pc, rule, rule.Plan, 0, Binding{}, nil, res)
	}
	return res, nil
}

// search walks rule's plan depth-first: generator steps fan out over their
// domain, filter steps prune the branch, and a binding that survives every
// step becomes one PolicyViolation.
func search(ctx context.Context, ec *EvalContext, pc *patternCache, rule *compiler.CompiledRule, plan []compiler.PlanStep, idx int, b Binding, ranges []trace.Range, res *AnalysisResult) {
	if ec.cancelled() {
		res.Cancelled = true
		return
	}

	if idx == len(plan) {
		res.Errors = append(res.Errors, buildViolation(ctx, rule.Ctor, b, ec, ranges))
		return
	}

	step := plan[idx]
	if step.IsGenerator {
		vb := step.Atom.(*ast.VarBinding)
		candidates, warn := domainFor(ctx, vb, b, ec)
		if warn != nil {
			res.Warnings = append(res.Warnings, warn)
			return
		}
		for _, cand := range candidates {
			search(ctx, ec, pc, rule, plan, idx+1, b.extend(vb.Var, cand), ranges, res)
			if ec.cancelled() {
				res.Cancelled = true
				return
			}
		}
		return
	}

	keep, added, warn := evalFilter(ctx, step.Atom, b, ec, pc)
	if warn != nil {
		res.Warnings = append(res.Warnings, warn)
		return
	}
	if !keep {
		return
	}

	combined := make([]trace.Range, 0, len(ranges)+len(added))
	combined = append(combined, ranges...)
	combined = append(combined, added...)
	search(ctx, ec, pc, rule, plan, idx+1, b, combined, res)
}

// domainFor enumerates the candidates a generator atom binds its variable
// to: every trace event of the declared type when Domain is nil, or the
// elements of Domain's resolved list/dict otherwise (dict iteration walks
// values in sorted-key order, for deterministic output).
func domainFor(ctx context.Context, vb *ast.VarBinding, b Binding, ec *EvalContext) ([]any, *trace.Warning) {
	if vb.Domain == nil {
		var out []any
		for _, ev := range ec.Trace.AllEvents() {
			if eventMatchesType(ev, vb.Type) {
				out = append(out, ev)
			}
		}
		return out, nil
	}

	rec := &AccessRecorder{}
	v, warn := evalExpr(ctx, vb.Domain, b, ec, rec)
	if warn != nil {
		return nil, warn
	}

	if list, ok := v.AsList(); ok {
		out := make([]any, len(list))
		for i, el := range list {
			out[i] = el
		}
		return out, nil
	}

	if m, ok := v.AsMap(); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = m[k]
		}
		return out, nil
	}

	return nil, nil
}

func eventMatchesType(ev *trace.Event, t ast.Type) bool {
	switch t {
	case ast.TypeAny, ast.TypeEvent:
		return true
	case ast.TypeMessage:
		return ev.Kind == trace.KindMessage
	case ast.TypeToolCall:
		return ev.Kind == trace.KindToolCall
	case ast.TypeToolOutput:
		return ev.Kind == trace.KindToolOutput
	default:
		return false
	}
}

// evalFilter tests a filter atom against b, returning the Ranges it
// touched on a match. A non-nil Warning means the atom's truth value is
// unknown (a detector refused or errored) — the caller treats that as a
// failed filter without recording an error.
func evalFilter(ctx context.Context, atom ast.Atom, b Binding, ec *EvalContext, pc *patternCache) (bool, []trace.Range, *trace.Warning) {
	switch a := atom.(type) {
	case *ast.PatternAssertion:
		return evalPatternAssertion(ctx, a, b, ec, pc)

	case *ast.FlowAssertion:
		ok, warn := evalFlowAssertion(a, b, ec)
		return ok, nil, warn

	case *ast.BoolExpr:
		rec := &AccessRecorder{}
		v, warn := evalExpr(ctx, a.Expr, b, ec, rec)
		if warn != nil {
			return false, nil, warn
		}
		keep := truthy(v)
		if a.Negated {
			keep = !keep
		}
		ranges := rec.drain()
		if keep && !a.Negated {
			if r, ok := detectorCallRange(a.Expr, b, ec); ok {
				ranges = append(ranges, r)
			}
		}
		return keep, ranges, nil

	default:
		return false, nil, nil
	}
}

func evalPatternAssertion(ctx context.Context, a *ast.PatternAssertion, b Binding, ec *EvalContext, pc *patternCache) (bool, []trace.Range, *trace.Warning) {
	id, ok := a.Subject.(*ast.Ident)
	if !ok || a.ToolCall == nil {
		return false, nil, nil
	}
	ev, ok := b.event(id.Name)
	if !ok {
		return false, nil, nil
	}

	pat := pc.get(a)
	matched, ranges, warn := match.MatchToolCall(ctx, ev, a.ToolCall.ToolName, pat, ec.Detectors.AsMatchTable())
	if warn != nil {
		return false, nil, warn
	}
	if a.Negated {
		return !matched, nil, nil
	}
	return matched, ranges, nil
}

func evalFlowAssertion(a *ast.FlowAssertion, b Binding, ec *EvalContext) (bool, *trace.Warning) {
	from, ok := resolveEvent(a.From, b)
	if !ok {
		return false, nil
	}
	to, ok := resolveEvent(a.To, b)
	if !ok {
		return false, nil
	}
	ok2 := ec.Graph.FlowsTo(from, to)
	if a.Negated {
		ok2 = !ok2
	}
	return ok2, nil
}

func resolveEvent(e ast.Expr, b Binding) (*trace.Event, bool) {
	id, ok := e.(*ast.Ident)
	if !ok {
		return nil, false
	}
	return b.event(id.Name)
}

// buildViolation materializes a rule's `raise Ctor(...)` once a binding
// has satisfied every atom in the body.
func buildViolation(ctx context.Context, ctor ast.ErrorCtor, b Binding, ec *EvalContext, ranges []trace.Range) *PolicyViolation {
	rec := &AccessRecorder{}

	args := make(map[string]any, len(ctor.KwArgs))
	for name, expr := range ctor.KwArgs {
		v, warn := evalExpr(ctx, expr, b, ec, rec)
		if warn != nil {
			continue
		}
		args[name] = v.Raw()
	}

	msg := ""
	if ctor.PosMsg != nil {
		if v, warn := evalExpr(ctx, ctor.PosMsg, b, ec, rec); warn == nil {
			msg, _ = v.AsString()
		}
	}

	return &PolicyViolation{
		ID:      newViolationID(),
		Kind:    ctor.Kind,
		Name:    ctor.Name,
		Message: msg,
		Args:    args,
		Ranges:  append([]trace.Range{}, ranges...),
	}
}

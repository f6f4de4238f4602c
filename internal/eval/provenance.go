package eval

import (
	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/trace"
)

// provenance walks an attribute/index chain back to the bound event it
// reads from, collecting the path segments along the way. `o.content`
// resolves to (o's event, [content]); `call.arguments.q` resolves to
// (call's event, [arguments, q]).
func provenance(e ast.Expr, b Binding) ([]trace.PathSeg, *trace.Event, bool) {
	switch x := e.(type) {
	case *ast.Ident:
		ev, ok := b.event(x.Name)
		return nil, ev, ok

	case *ast.Attr:
		segs, ev, ok := provenance(x.Recv, b)
		if !ok {
			return nil, nil, false
		}
		return append(segs, trace.PathSeg{Key: x.Name}), ev, true

	case *ast.Index:
		segs, ev, ok := provenance(x.Recv, b)
		if !ok {
			return nil, nil, false
		}
		if lit, ok := x.Key.(*ast.Literal); ok && lit.Kind == ast.LitString {
			return append(segs, trace.PathSeg{Key: lit.Value.(string)}), ev, true
		}
		return segs, ev, true

	default:
		return nil, nil, false
	}
}

// detectorCallRange localizes a bare `detector(x.y.z)` boolean atom to the
// sub-object its argument read from, for the same reason a `tool:` pattern
// match localizes: a violation's Ranges must point at the content that
// actually participated in satisfying the rule (spec.md §8 invariant 4),
// not just name the rule that fired.
func detectorCallRange(e ast.Expr, b Binding, ec *EvalContext) (trace.Range, bool) {
	call, ok := e.(*ast.Call)
	if !ok || len(call.Args) != 1 || !ec.Detectors.HasDetector(call.Name) {
		return trace.Range{}, false
	}
	segs, ev, ok := provenance(call.Args[0], b)
	if !ok {
		return trace.Range{}, false
	}
	return trace.NewRange(ev, segs...), true
}

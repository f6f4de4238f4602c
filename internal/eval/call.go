package eval

import (
	"context"
	"strings"

	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/trace"
)

// evalCall dispatches a Call expression: built-in functions, a registered
// detector, or one of the policy's own predicate definitions, in that
// order (mirroring the compiler's resolution order in checkExpr).
func evalCall(ctx context.Context, c *ast.Call, b Binding, ec *EvalContext, rec *AccessRecorder) (trace.Value, *trace.Warning) {
	if v, ok, warn := evalBuiltin(ctx, c, b, ec, rec); ok {
		return v, warn
	}

	if ec.Detectors.HasDetector(c.Name) {
		return evalDetectorCall(ctx, c, b, ec, rec)
	}

	if pred, ok := ec.Preds[c.Name]; ok {
		return evalPredCall(ctx, pred, c, b, ec, rec)
	}

	return trace.Null, nil
}

func evalBuiltin(ctx context.Context, c *ast.Call, b Binding, ec *EvalContext, rec *AccessRecorder) (trace.Value, bool, *trace.Warning) {
	switch c.Name {
	case "len":
		if len(c.Args) != 1 {
			return trace.Null, true, nil
		}
		v, warn := evalExpr(ctx, c.Args[0], b, ec, rec)
		if warn != nil {
			return trace.Null, true, warn
		}
		if s, ok := v.AsString(); ok {
			return trace.NewValue(float64(len(s))), true, nil
		}
		if l, ok := v.AsList(); ok {
			return trace.NewValue(float64(len(l))), true, nil
		}
		if m, ok := v.AsMap(); ok {
			return trace.NewValue(float64(len(m))), true, nil
		}
		return trace.NewValue(float64(0)), true, nil

	case "lower":
		if len(c.Args) != 1 {
			return trace.Null, true, nil
		}
		v, warn := evalExpr(ctx, c.Args[0], b, ec, rec)
		if warn != nil {
			return trace.Null, true, warn
		}
		s, _ := v.AsString()
		return trace.NewValue(strings.ToLower(s)), true, nil

	case "upper":
		if len(c.Args) != 1 {
			return trace.Null, true, nil
		}
		v, warn := evalExpr(ctx, c.Args[0], b, ec, rec)
		if warn != nil {
			return trace.Null, true, warn
		}
		s, _ := v.AsString()
		return trace.NewValue(strings.ToUpper(s)), true, nil

	default:
		return trace.Null, false, nil
	}
}

// evalDetectorCall builds the detector's input value from the first
// positional argument and its options from KwArgs, then calls it. A
// refusing or erroring detector surfaces as a Warning, treating the
// calling atom as unknown per spec.md §4.7.
func evalDetectorCall(ctx context.Context, c *ast.Call, b Binding, ec *EvalContext, rec *AccessRecorder) (trace.Value, *trace.Warning) {
	var arg trace.Value
	if len(c.Args) > 0 {
		v, warn := evalExpr(ctx, c.Args[0], b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		arg = v
	}

	opts := make(map[string]any, len(c.KwArgs))
	for name, expr := range c.KwArgs {
		v, warn := evalExpr(ctx, expr, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		opts[name] = v.Raw()
	}

	res, warn := ec.Detectors.Call(ctx, c.Name, arg, opts)
	if warn != nil {
		return trace.Null, warn
	}
	return trace.NewValue(res.Triggered || len(res.Tags) > 0), nil
}

// evalPredCall evaluates pred's Body with a fresh scope binding each
// parameter to the corresponding argument expression's value, so a rule
// can factor shared boolean logic into `pred name(...) := expr`.
func evalPredCall(ctx context.Context, pred *ast.PredicateDef, c *ast.Call, b Binding, ec *EvalContext, rec *AccessRecorder) (trace.Value, *trace.Warning) {
	inner := Binding{}
	for i, param := range pred.Params {
		if i >= len(c.Args) {
			break
		}
		if id, ok := c.Args[i].(*ast.Ident); ok {
			if ev, ok := b.event(id.Name); ok {
				inner[param.Name] = ev
				continue
			}
		}
		v, warn := evalExpr(ctx, c.Args[i], b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		inner[param.Name] = v
	}
	return evalExpr(ctx, pred.Body, inner, ec, rec)
}

package eval

import (
	"context"
	"regexp"
	"strings"

	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/trace"
)

// evalExpr evaluates e against the current binding. A non-nil Warning
// means some detector call inside e refused or failed — the caller must
// treat the atom containing e as unknown (skip the candidate binding,
// not fail the whole rule), per spec.md §4.7.
func evalExpr(ctx context.Context, e ast.Expr, b Binding, ec *EvalContext, rec *AccessRecorder) (trace.Value, *trace.Warning) {
	switch x := e.(type) {
	case *ast.Ident:
		if ev, ok := b.event(x.Name); ok {
			return trace.NewValue(string(ev.ID)), nil
		}
		if v, ok := b.value(x.Name); ok {
			return v, nil
		}
		if v, ok := ec.Params[x.Name]; ok {
			return v, nil
		}
		return trace.Null, nil

	case *ast.Attr:
		if id, ok := x.Recv.(*ast.Ident); ok {
			if ev, ok := b.event(id.Name); ok {
				return attrOfEvent(ev, x.Name), nil
			}
		}
		recv, warn := evalExpr(ctx, x.Recv, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		if v, ok := recv.Path(x.Name); ok {
			return v, nil
		}
		return trace.Null, nil

	case *ast.Index:
		recv, warn := evalExpr(ctx, x.Recv, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		keyVal, warn := evalExpr(ctx, x.Key, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		if key, ok := keyVal.AsString(); ok {
			if v, ok := recv.Path(key); ok {
				return v, nil
			}
		}
		if idx, ok := keyVal.AsNumber(); ok {
			if v, ok := recv.Path(trimFloat(idx)); ok {
				return v, nil
			}
		}
		return trace.Null, nil

	case *ast.Call:
		return evalCall(ctx, x, b, ec, rec)

	case *ast.BinOp:
		return evalBinOp(ctx, x, b, ec, rec)

	case *ast.UnaryOp:
		v, warn := evalExpr(ctx, x.Operand, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		switch x.Op {
		case ast.OpNot:
			return trace.NewValue(!truthy(v)), nil
		case ast.OpNeg:
			n, _ := v.AsNumber()
			return trace.NewValue(-n), nil
		}
		return trace.Null, nil

	case *ast.Literal:
		switch x.Kind {
		case ast.LitString, ast.LitRegex:
			return trace.NewValue(x.Value.(string)), nil
		case ast.LitNumber:
			return trace.NewValue(x.Value.(float64)), nil
		case ast.LitBool:
			return trace.NewValue(x.Value.(bool)), nil
		default:
			return trace.Null, nil
		}

	case *ast.ListLit:
		out := make([]any, len(x.Elems))
		for i, el := range x.Elems {
			v, warn := evalExpr(ctx, el, b, ec, rec)
			if warn != nil {
				return trace.Null, warn
			}
			out[i] = v.Raw()
		}
		return trace.NewValue(out), nil

	case *ast.MapLit:
		out := make(map[string]any, len(x.Keys))
		for i, k := range x.Keys {
			v, warn := evalExpr(ctx, x.Values[i], b, ec, rec)
			if warn != nil {
				return trace.Null, warn
			}
			out[k] = v.Raw()
		}
		return trace.NewValue(out), nil

	default:
		return trace.Null, nil
	}
}

// attrOfEvent resolves the field names rule bodies dereference on a
// bound event variable.
func attrOfEvent(ev *trace.Event, name string) trace.Value {
	switch name {
	case "role":
		return trace.NewValue(ev.Role)
	case "content":
		if ev.Kind == trace.KindToolOutput {
			return ev.OutputContent
		}
		return ev.Content
	case "tool_name":
		return trace.NewValue(ev.ToolName)
	case "tool_call_id":
		if ev.Kind == trace.KindToolOutput {
			return trace.NewValue(ev.OutputToolCallID)
		}
		return trace.NewValue(ev.ToolCallID)
	case "arguments":
		return trace.NewValue(ev.Arguments)
	case "agent_name":
		return trace.NewValue(ev.AgentName)
	case "id":
		return trace.NewValue(string(ev.ID))
	case "index":
		return trace.NewValue(float64(ev.Index))
	default:
		return trace.Null
	}
}

func evalBinOp(ctx context.Context, x *ast.BinOp, b Binding, ec *EvalContext, rec *AccessRecorder) (trace.Value, *trace.Warning) {
	switch x.Op {
	case ast.OpOr:
		l, warn := evalExpr(ctx, x.Left, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		if truthy(l) {
			return trace.NewValue(true), nil
		}
		r, warn := evalExpr(ctx, x.Right, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		return trace.NewValue(truthy(r)), nil

	case ast.OpAnd:
		l, warn := evalExpr(ctx, x.Left, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		if !truthy(l) {
			return trace.NewValue(false), nil
		}
		r, warn := evalExpr(ctx, x.Right, b, ec, rec)
		if warn != nil {
			return trace.Null, warn
		}
		return trace.NewValue(truthy(r)), nil
	}

	left, warn := evalExpr(ctx, x.Left, b, ec, rec)
	if warn != nil {
		return trace.Null, warn
	}

	if re, ok := regexLiteral(x.Right); ok && (x.Op == ast.OpEq || x.Op == ast.OpIn) {
		s, _ := left.AsString()
		if x.Op == ast.OpEq {
			loc := re.FindStringIndex(s)
			return trace.NewValue(loc != nil && loc[0] == 0 && loc[1] == len(s)), nil
		}
		return trace.NewValue(re.MatchString(s)), nil
	}

	right, warn := evalExpr(ctx, x.Right, b, ec, rec)
	if warn != nil {
		return trace.Null, warn
	}

	switch x.Op {
	case ast.OpEq:
		return trace.NewValue(valuesEqual(left, right)), nil
	case ast.OpNe:
		return trace.NewValue(!valuesEqual(left, right)), nil
	case ast.OpLt, ast.OpLe, ast.OpGt, ast.OpGe:
		return trace.NewValue(compareNumbers(x.Op, left, right)), nil
	case ast.OpIn:
		return trace.NewValue(memberOf(left, right)), nil
	case ast.OpNotIn:
		return trace.NewValue(!memberOf(left, right)), nil
	case ast.OpAdd, ast.OpSub, ast.OpMul, ast.OpDiv:
		return arithmetic(x.Op, left, right), nil
	default:
		return trace.Null, nil
	}
}

func regexLiteral(e ast.Expr) (*regexp.Regexp, bool) {
	lit, ok := e.(*ast.Literal)
	if !ok || lit.Kind != ast.LitRegex {
		return nil, false
	}
	re, err := regexp.Compile(lit.Value.(string))
	if err != nil {
		return nil, false
	}
	return re, true
}

func valuesEqual(a, b trace.Value) bool {
	if as, ok := a.AsString(); ok {
		bs, ok := b.AsString()
		return ok && as == bs
	}
	if an, ok := a.AsNumber(); ok {
		bn, ok := b.AsNumber()
		return ok && an == bn
	}
	if ab, ok := a.AsBool(); ok {
		bb, ok := b.AsBool()
		return ok && ab == bb
	}
	return a.IsNull() && b.IsNull()
}

func compareNumbers(op ast.BinOpKind, a, b trace.Value) bool {
	an, aok := a.AsNumber()
	bn, bok := b.AsNumber()
	if !aok || !bok {
		as, _ := a.AsString()
		bs, _ := b.AsString()
		switch op {
		case ast.OpLt:
			return as < bs
		case ast.OpLe:
			return as <= bs
		case ast.OpGt:
			return as > bs
		case ast.OpGe:
			return as >= bs
		}
		return false
	}
	switch op {
	case ast.OpLt:
		return an < bn
	case ast.OpLe:
		return an <= bn
	case ast.OpGt:
		return an > bn
	case ast.OpGe:
		return an >= bn
	}
	return false
}

func memberOf(needle, haystack trace.Value) bool {
	if s, ok := haystack.AsString(); ok {
		n, ok := needle.AsString()
		return ok && strings.Contains(s, n)
	}
	if list, ok := haystack.AsList(); ok {
		for _, el := range list {
			if valuesEqual(needle, el) {
				return true
			}
		}
		return false
	}
	if m, ok := haystack.AsMap(); ok {
		n, ok := needle.AsString()
		if !ok {
			return false
		}
		_, found := m[n]
		return found
	}
	return false
}

func arithmetic(op ast.BinOpKind, a, b trace.Value) trace.Value {
	an, aok := a.AsNumber()
	bn, bok := b.AsNumber()
	if !aok || !bok {
		if op == ast.OpAdd {
			as, _ := a.AsString()
			bs, _ := b.AsString()
			return trace.NewValue(as + bs)
		}
		return trace.Null
	}
	switch op {
	case ast.OpAdd:
		return trace.NewValue(an + bn)
	case ast.OpSub:
		return trace.NewValue(an - bn)
	case ast.OpMul:
		return trace.NewValue(an * bn)
	case ast.OpDiv:
		if bn == 0 {
			return trace.Null
		}
		return trace.NewValue(an / bn)
	default:
		return trace.Null
	}
}

// truthy mirrors the language's notion of a "falsy" value: null, false,
// empty string, zero, and empty list/map are falsy; everything else (in
// particular a non-empty list/map/string) is truthy.
func truthy(v trace.Value) bool {
	if v.IsNull() {
		return false
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	if n, ok := v.AsNumber(); ok {
		return n != 0
	}
	if s, ok := v.AsString(); ok {
		return s != ""
	}
	if l, ok := v.AsList(); ok {
		return len(l) > 0
	}
	if m, ok := v.AsMap(); ok {
		return len(m) > 0
	}
	return true
}

func trimFloat(f float64) string {
	return trace.NewValue(f).String()
}

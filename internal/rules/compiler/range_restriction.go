package compiler

import (
	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/rules/parser"
)

// checkRangeRestriction enforces the Datalog rule that a variable used
// only under negation must already be bound by an earlier positive atom
// in the same rule body (spec.md §8 invariant 6). It walks atoms in
// source order, growing a bound-set as positive atoms are seen.
func checkRangeRestriction(body []ast.Atom, diags *parser.DiagnosticList) {
	bound := map[string]bool{}

	for _, atom := range body {
		switch a := atom.(type) {
		case *ast.VarBinding:
			bound[a.Var] = true

		case *ast.PatternAssertion:
			if a.Negated {
				checkBound(a.Subject, bound, diags)
			} else {
				markBound(a.Subject, bound)
			}

		case *ast.FlowAssertion:
			if a.Negated {
				checkBound(a.From, bound, diags)
				checkBound(a.To, bound, diags)
			} else {
				markBound(a.From, bound)
				markBound(a.To, bound)
			}

		case *ast.BoolExpr:
			if a.Negated {
				checkBound(a.Expr, bound, diags)
			} else {
				markBound(a.Expr, bound)
			}
		}
	}
}

// checkBound reports every identifier referenced by e that is not yet
// in bound.
func checkBound(e ast.Expr, bound map[string]bool, diags *parser.DiagnosticList) {
	for _, name := range identsIn(e) {
		if !bound[name] {
			diags.Add(e.Location(), "variable %q used under negation is not range-restricted", name)
		}
	}
}

// markBound treats every identifier referenced by a satisfied positive
// atom as bound for the remainder of the rule — a simplification of full
// Datalog range restriction, sufficient for the single-conjunction rule
// bodies this language allows (no disjunction inside a rule body).
func markBound(e ast.Expr, bound map[string]bool) {
	for _, name := range identsIn(e) {
		bound[name] = true
	}
}

func identsIn(e ast.Expr) []string {
	var names []string
	var walk func(ast.Expr)
	walk = func(e ast.Expr) {
		switch x := e.(type) {
		case *ast.Ident:
			names = append(names, x.Name)
		case *ast.Attr:
			walk(x.Recv)
		case *ast.Index:
			walk(x.Recv)
			walk(x.Key)
		case *ast.Call:
			for _, a := range x.Args {
				walk(a)
			}
			for _, a := range x.KwArgs {
				walk(a)
			}
		case *ast.BinOp:
			walk(x.Left)
			walk(x.Right)
		case *ast.UnaryOp:
			walk(x.Operand)
		case *ast.ListLit:
			for _, el := range x.Elems {
				walk(el)
			}
		case *ast.MapLit:
			for _, v := range x.Values {
				walk(v)
			}
		}
	}
	walk(e)
	return names
}

// Package compiler turns a parsed policy into a form the evaluator can
// run directly: scope-checked, its atoms partitioned into generators and
// filters, and every negated atom checked for range restriction.
package compiler

import (
	"fmt"

	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/rules/parser"
)

// SymbolResolver answers whether a name used as a call target resolves
// to a registered detector. Satisfied by internal/detect.DetectorTable;
// kept as an interface here so this package never imports internal/detect.
type SymbolResolver interface {
	HasDetector(name string) bool
}

// PlanStep is one step of a compiled rule's evaluation plan: either a
// generator (binds a fresh variable over a domain) or a filter (tests
// the atom against the bindings accumulated so far).
type PlanStep struct {
	Atom        ast.Atom
	IsGenerator bool
}

// CompiledRule is one rule, ready for Evaluate to walk.
type CompiledRule struct {
	Source *ast.Rule
	Plan   []PlanStep
	Ctor   ast.ErrorCtor
}

// CompiledPolicy is the output of Compile: every rule normalized and
// range-checked, plus the predicate table rules may call into.
type CompiledPolicy struct {
	Rules []*CompiledRule
	Preds map[string]*ast.PredicateDef
}

// Compiler performs the type checker + rule compiler pass of the policy
// language (spec §4.2): scope/type assignment, generator/filter
// normalization, range restriction, and call-target resolution.
type Compiler struct {
	detectors SymbolResolver
}

// New creates a Compiler that resolves detector calls against detectors.
func New(detectors SymbolResolver) *Compiler {
	return &Compiler{detectors: detectors}
}

// Compile checks and lowers pol. A non-nil error means the policy must
// not be evaluated — compile-time errors abort policy loading.
func (c *Compiler) Compile(pol *ast.Policy) (*CompiledPolicy, error) {
	preds := make(map[string]*ast.PredicateDef, len(pol.Preds))
	for _, pd := range pol.Preds {
		preds[pd.Name] = pd
	}

	var diags parser.DiagnosticList
	cp := &CompiledPolicy{Preds: preds}

	for _, pd := range pol.Preds {
		scope := paramScope(pd.Params)
		c.checkExpr(pd.Body, scope, preds, &diags)
	}

	for _, rule := range pol.Rules {
		cr := c.compileRule(rule, preds, &diags)
		cp.Rules = append(cp.Rules, cr)
	}

	if err := diags.ToError(); err != nil {
		return nil, err
	}
	return cp, nil
}

func paramScope(params []ast.Param) map[string]ast.Type {
	scope := make(map[string]ast.Type, len(params))
	for _, p := range params {
		scope[p.Name] = p.Type
	}
	return scope
}

func (c *Compiler) compileRule(rule *ast.Rule, preds map[string]*ast.PredicateDef, diags *parser.DiagnosticList) *CompiledRule {
	scope := map[string]ast.Type{}

	// Step 1: scope & type assignment, in declared order.
	for _, atom := range rule.Body {
		c.assignScope(atom, scope, preds, diags)
	}

	// Step 2: normalize into generators-first, filters-second, a stable
	// partition that preserves relative order within each group.
	plan := normalize(rule.Body)

	// Step 3: range restriction over the *declared* order (not the
	// normalized one) — a negated atom may only reference variables
	// already bound by an earlier positive atom in the source text.
	checkRangeRestriction(rule.Body, diags)

	return &CompiledRule{Source: rule, Plan: plan, Ctor: rule.Ctor}
}

func (c *Compiler) assignScope(atom ast.Atom, scope map[string]ast.Type, preds map[string]*ast.PredicateDef, diags *parser.DiagnosticList) {
	switch a := atom.(type) {
	case *ast.VarBinding:
		if a.Domain != nil {
			c.checkExpr(a.Domain, scope, preds, diags)
		}
		scope[a.Var] = a.Type

	case *ast.PatternAssertion:
		c.checkExpr(a.Subject, scope, preds, diags)

	case *ast.FlowAssertion:
		c.checkExpr(a.From, scope, preds, diags)
		c.checkExpr(a.To, scope, preds, diags)

	case *ast.BoolExpr:
		c.checkExpr(a.Expr, scope, preds, diags)
	}
}

// checkExpr walks expr resolving identifiers against scope and call
// targets against preds/detectors. It does not attempt full structural
// type inference beyond flagging known-bad member access on a `dict`
// variable used as an event (the one case spec.md §4.2 calls out
// explicitly); most type resolution is deferred to evaluation, where
// trace.Value already carries dynamic type information safely.
func (c *Compiler) checkExpr(e ast.Expr, scope map[string]ast.Type, preds map[string]*ast.PredicateDef, diags *parser.DiagnosticList) {
	switch x := e.(type) {
	case *ast.Ident:
		if _, ok := scope[x.Name]; !ok {
			diags.Add(x.Loc, "undefined variable %q", x.Name)
		}
	case *ast.Attr:
		c.checkExpr(x.Recv, scope, preds, diags)
		if id, ok := x.Recv.(*ast.Ident); ok {
			if t, ok := scope[id.Name]; ok && t == ast.TypeDict && x.Name == "role" {
				diags.Add(x.Loc, "variable %q is declared dict and has no field %q", id.Name, x.Name)
			}
		}
	case *ast.Index:
		c.checkExpr(x.Recv, scope, preds, diags)
		c.checkExpr(x.Key, scope, preds, diags)
	case *ast.Call:
		if _, ok := preds[x.Name]; !ok && !c.detectors.HasDetector(x.Name) && !isBuiltinFunc(x.Name) {
			diags.Add(x.Loc, "undefined symbol %q", x.Name)
		}
		for _, arg := range x.Args {
			c.checkExpr(arg, scope, preds, diags)
		}
		for _, arg := range x.KwArgs {
			c.checkExpr(arg, scope, preds, diags)
		}
	case *ast.BinOp:
		c.checkExpr(x.Left, scope, preds, diags)
		c.checkExpr(x.Right, scope, preds, diags)
	case *ast.UnaryOp:
		c.checkExpr(x.Operand, scope, preds, diags)
	case *ast.ListLit:
		for _, el := range x.Elems {
			c.checkExpr(el, scope, preds, diags)
		}
	case *ast.MapLit:
		for _, v := range x.Values {
			c.checkExpr(v, scope, preds, diags)
		}
	case *ast.Literal, *ast.Wildcard, *ast.Classifier:
		// leaves, nothing to check
	default:
		panic(fmt.Sprintf("compiler: unhandled expr type %T", e))
	}
}

func isBuiltinFunc(name string) bool {
	switch name {
	case "len", "lower", "upper":
		return true
	default:
		return false
	}
}

// normalize partitions atoms into generators (VarBinding) and filters
// (everything else), generators first, each group in original order.
func normalize(body []ast.Atom) []PlanStep {
	plan := make([]PlanStep, 0, len(body))
	for _, atom := range body {
		if _, ok := atom.(*ast.VarBinding); ok {
			plan = append(plan, PlanStep{Atom: atom, IsGenerator: true})
		}
	}
	for _, atom := range body {
		if _, ok := atom.(*ast.VarBinding); !ok {
			plan = append(plan, PlanStep{Atom: atom, IsGenerator: false})
		}
	}
	return plan
}

package eval

import (
	"regexp"

	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/rules/match"
)

// buildPattern translates the static pattern expression parsed inside
// `tool:name(PATTERN)` into the match package's Pattern tree. Pattern
// expressions never reference rule variables (the grammar's
// parsePatternExpr only accepts literals, regexes, classifiers, wildcards,
// and nested object/list literals), so this is a pure, binding-independent
// translation done once per rule body, not once per candidate binding.
func buildPattern(e ast.Expr) match.Pattern {
	switch x := e.(type) {
	case *ast.Literal:
		switch x.Kind {
		case ast.LitString:
			return match.Literal{Want: x.Value.(string)}
		case ast.LitNumber:
			return match.NumberLit{Want: x.Value.(float64)}
		case ast.LitBool:
			return match.BoolLit{Want: x.Value.(bool)}
		case ast.LitNull:
			return match.NullLit{}
		case ast.LitRegex:
			re, err := regexp.Compile(x.Value.(string))
			if err != nil {
				return match.NullLit{} // unreachable: the lexer only emits valid regex text it scanned
			}
			return match.Regex{Re: re}
		}
		return match.Wildcard{}

	case *ast.Wildcard:
		return match.Wildcard{}

	case *ast.Classifier:
		return match.Classifier{Name: x.Name}

	case *ast.MapLit:
		values := make([]match.Pattern, len(x.Values))
		for i, v := range x.Values {
			values[i] = buildPattern(v)
		}
		return match.Object{Keys: x.Keys, Values: values}

	case *ast.ListLit:
		elems := make([]match.Pattern, len(x.Elems))
		for i, el := range x.Elems {
			elems[i] = buildPattern(el)
		}
		return match.ArrayPrefix{Elems: elems}

	default:
		return match.Wildcard{}
	}
}

// patternCache memoizes buildPattern per PatternAssertion node so a rule
// re-evaluated over many candidate bindings compiles each regex once.
type patternCache struct {
	byNode map[*ast.PatternAssertion]match.Pattern
}

func newPatternCache() *patternCache {
	return &patternCache{byNode: make(map[*ast.PatternAssertion]match.Pattern)}
}

func (pc *patternCache) get(pa *ast.PatternAssertion) match.Pattern {
	if p, ok := pc.byNode[pa]; ok {
		return p
	}
	p := buildPattern(pa.ToolCall.PatternExpr)
	pc.byNode[pa] = p
	return p
}

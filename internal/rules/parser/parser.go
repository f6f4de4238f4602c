// Package parser implements a recursive-descent parser for the policy
// rule language: one production per grammar rule, every node stamped
// with the Location of the token it started from, diagnostics
// accumulated rather than aborting on the first syntax error.
package parser

import (
	"strconv"

	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/rules/lexer"
)

// Parser consumes a token stream into an *ast.Policy.
type Parser struct {
	file string
	toks []lexer.Token
	pos  int
	diags DiagnosticList
}

// ParsePolicy tokenizes and parses src, returning the policy and a
// non-nil error (diags.ToError()) if any syntax error was found. Parse
// errors abort policy loading, per the language's error-handling
// contract — the caller should not attempt to compile a policy with a
// non-nil error.
func ParsePolicy(file, src string) (*ast.Policy, error) {
	toks, err := lexer.New(file, src).Tokens()
	if err != nil {
		return nil, err
	}
	p := &Parser{file: file, toks: toks}
	pol := p.parsePolicy()
	return pol, p.diags.ToError()
}

func (p *Parser) cur() lexer.Token  { return p.toks[p.pos] }
func (p *Parser) peekAt(n int) lexer.Token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *Parser) advance() lexer.Token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *Parser) loc(t lexer.Token) ast.Location {
	return ast.Location{File: p.file, Line: t.Line, Col: t.Col}
}

func (p *Parser) errorf(format string, args ...any) {
	p.diags.Add(p.loc(p.cur()), format, args...)
}

// expect consumes the current token if it matches kind, else records a
// diagnostic and returns the token unconsumed (error recovery: the
// caller keeps going so later errors still surface).
func (p *Parser) expect(kind lexer.Kind) lexer.Token {
	if p.cur().Kind == kind {
		return p.advance()
	}
	p.errorf("expected %s, got %s", kind, p.cur().Kind)
	return p.cur()
}

func (p *Parser) skipNewlines() {
	for p.cur().Kind == lexer.NEWLINE {
		p.advance()
	}
}

func (p *Parser) parsePolicy() *ast.Policy {
	pol := &ast.Policy{}
	p.skipNewlines()
	for p.cur().Kind != lexer.EOF {
		switch p.cur().Kind {
		case lexer.FROM:
			pol.Imports = append(pol.Imports, p.parseImport())
		case lexer.PRED:
			pol.Preds = append(pol.Preds, p.parsePredicateDef())
		case lexer.RAISE:
			pol.Rules = append(pol.Rules, p.parseRule())
		default:
			p.errorf("unexpected token %s at top level", p.cur().Kind)
			p.advance()
		}
		p.skipNewlines()
	}
	return pol
}

func (p *Parser) parseImport() ast.Import {
	start := p.cur()
	p.expect(lexer.FROM)
	module := p.expect(lexer.IDENT).Text
	for p.cur().Kind == lexer.DOT {
		p.advance()
		module += "." + p.expect(lexer.IDENT).Text
	}
	p.expect(lexer.IMPORT)
	names := []string{p.expect(lexer.IDENT).Text}
	for p.cur().Kind == lexer.COMMA {
		p.advance()
		names = append(names, p.expect(lexer.IDENT).Text)
	}
	return ast.Import{Module: module, Names: names, Loc: p.loc(start)}
}

func (p *Parser) parseType(name string) ast.Type {
	switch name {
	case "Event":
		return ast.TypeEvent
	case "Message":
		return ast.TypeMessage
	case "ToolCall":
		return ast.TypeToolCall
	case "ToolOutput":
		return ast.TypeToolOutput
	case "dict":
		return ast.TypeDict
	case "list":
		return ast.TypeList
	case "str":
		return ast.TypeString
	case "num":
		return ast.TypeNumber
	case "bool":
		return ast.TypeBool
	default:
		p.errorf("unknown type %q", name)
		return ast.TypeAny
	}
}

func (p *Parser) parsePredicateDef() *ast.PredicateDef {
	start := p.cur()
	p.expect(lexer.PRED)
	name := p.expect(lexer.IDENT).Text
	p.expect(lexer.LPAREN)

	var params []ast.Param
	for p.cur().Kind != lexer.RPAREN && p.cur().Kind != lexer.EOF {
		pname := p.expect(lexer.IDENT).Text
		p.expect(lexer.COLON)
		ptype := p.parseType(p.expect(lexer.IDENT).Text)
		params = append(params, ast.Param{Name: pname, Type: ptype})
		if p.cur().Kind == lexer.COMMA {
			p.advance()
		}
	}
	p.expect(lexer.RPAREN)
	p.expect(lexer.DEFINE)
	body := p.parseExpr()

	return &ast.PredicateDef{Name: name, Params: params, Body: body, Loc: p.loc(start)}
}

func (p *Parser) parseRule() *ast.Rule {
	start := p.cur()
	p.expect(lexer.RAISE)
	ctor := p.parseErrorCtor()
	p.expect(lexer.IF)
	p.expect(lexer.COLON)
	p.expect(lexer.NEWLINE)
	p.expect(lexer.INDENT)

	var body []ast.Atom
	for p.cur().Kind != lexer.DEDENT && p.cur().Kind != lexer.EOF {
		if p.cur().Kind == lexer.NEWLINE {
			p.advance()
			continue
		}
		body = append(body, p.parseAtom())
		if p.cur().Kind == lexer.NEWLINE {
			p.advance()
		}
	}
	p.expect(lexer.DEDENT)

	return &ast.Rule{Body: body, Ctor: ctor, Loc: p.loc(start)}
}

func (p *Parser) parseErrorCtor() ast.ErrorCtor {
	start := p.cur()
	if p.cur().Kind == lexer.STRING {
		tok := p.advance()
		return ast.ErrorCtor{Kind: "PolicyViolation", Name: tok.Text, Loc: p.loc(start)}
	}

	name := p.expect(lexer.IDENT).Text
	ctor := ast.ErrorCtor{Kind: "PolicyViolation", Name: name, KwArgs: map[string]ast.Expr{}, Loc: p.loc(start)}
	if p.cur().Kind != lexer.LPAREN {
		return ctor
	}
	p.advance()
	for p.cur().Kind != lexer.RPAREN && p.cur().Kind != lexer.EOF {
		if p.cur().Kind == lexer.IDENT && p.peekAt(1).Kind == lexer.ASSIGN {
			kw := p.advance().Text
			p.advance() // '='
			ctor.KwArgs[kw] = p.parseExpr()
		} else {
			ctor.PosMsg = p.parseExpr()
		}
		if p.cur().Kind == lexer.COMMA {
			p.advance()
		}
	}
	p.expect(lexer.RPAREN)
	return ctor
}

// parseAtom parses one line of a rule body.
func (p *Parser) parseAtom() ast.Atom {
	start := p.cur()

	negated := false
	if p.cur().Kind == lexer.NOT {
		// `not` prefixing a flow/pattern/boolean atom, e.g. `not a -> b`.
		p.advance()
		negated = true
	}

	if !negated && p.cur().Kind == lexer.LPAREN && p.looksLikeVarDecl() {
		return p.parseVarBinding(start)
	}

	left := p.parseExpr()

	switch p.cur().Kind {
	case lexer.ARROW:
		p.advance()
		right := p.parseExpr()
		return &ast.FlowAssertion{From: left, To: right, Negated: negated, Loc: p.loc(start)}

	case lexer.IS:
		p.advance()
		return p.parsePatternAssertion(start, left, negated)

	default:
		return &ast.BoolExpr{Expr: left, Negated: negated, Loc: p.loc(start)}
	}
}

// looksLikeVarDecl peeks past the current '(' to tell a declaration
// `(name: Type)` apart from a parenthesized expression `(a and b)`.
func (p *Parser) looksLikeVarDecl() bool {
	return p.peekAt(1).Kind == lexer.IDENT && p.peekAt(2).Kind == lexer.COLON
}

func (p *Parser) parseVarBinding(start lexer.Token) ast.Atom {
	p.expect(lexer.LPAREN)
	name := p.expect(lexer.IDENT).Text
	p.expect(lexer.COLON)
	typ := p.parseType(p.expect(lexer.IDENT).Text)
	p.expect(lexer.RPAREN)

	var domain ast.Expr
	if p.cur().Kind == lexer.IN {
		p.advance()
		domain = p.parseExpr()
	}
	return &ast.VarBinding{Var: name, Type: typ, Domain: domain, Loc: p.loc(start)}
}

func (p *Parser) parsePatternAssertion(start lexer.Token, subject ast.Expr, negated bool) ast.Atom {
	var tp *ast.ToolPattern
	if p.cur().Kind == lexer.IDENT && p.cur().Text == "tool" {
		p.advance()
		toolName := ""
		if p.cur().Kind == lexer.COLON {
			p.advance()
			toolName = p.expect(lexer.IDENT).Text
		}
		p.expect(lexer.LPAREN)
		pat := p.parsePatternExpr()
		p.expect(lexer.RPAREN)
		tp = &ast.ToolPattern{ToolName: toolName, PatternExpr: pat}
	} else {
		p.errorf("expected 'tool' after 'is'")
	}
	return &ast.PatternAssertion{Subject: subject, Negated: negated, ToolCall: tp, Loc: p.loc(start)}
}

// parsePatternExpr parses the pattern sub-language used inside `is
// tool:name(PATTERN)`: literals, regexes, classifiers, wildcards, and
// nested object/array shapes (§4.3 of the policy language).
func (p *Parser) parsePatternExpr() ast.Expr {
	start := p.cur()
	switch start.Kind {
	case lexer.STRING:
		p.advance()
		return &ast.Literal{Kind: ast.LitString, Value: start.Text, Loc: p.loc(start)}
	case lexer.REGEX:
		p.advance()
		return &ast.Literal{Kind: ast.LitRegex, Value: start.Text, Loc: p.loc(start)}
	case lexer.NUMBER:
		p.advance()
		n, _ := strconv.ParseFloat(start.Text, 64)
		return &ast.Literal{Kind: ast.LitNumber, Value: n, Loc: p.loc(start)}
	case lexer.TRUE, lexer.FALSE:
		p.advance()
		return &ast.Literal{Kind: ast.LitBool, Value: start.Kind == lexer.TRUE, Loc: p.loc(start)}
	case lexer.NULL:
		p.advance()
		return &ast.Literal{Kind: ast.LitNull, Loc: p.loc(start)}
	case lexer.CLASSIFIER:
		p.advance()
		return &ast.Classifier{Name: start.Text, Loc: p.loc(start)}
	case lexer.STAR:
		p.advance()
		return &ast.Wildcard{Loc: p.loc(start)}
	case lexer.LBRACE:
		return p.parsePatternMap(start)
	case lexer.LBRACKET:
		return p.parsePatternList(start)
	default:
		p.errorf("unexpected token %s in pattern", start.Kind)
		p.advance()
		return &ast.Wildcard{Loc: p.loc(start)}
	}
}

func (p *Parser) parsePatternMap(start lexer.Token) ast.Expr {
	p.expect(lexer.LBRACE)
	m := &ast.MapLit{Loc: p.loc(start)}
	for p.cur().Kind != lexer.RBRACE && p.cur().Kind != lexer.EOF {
		var key string
		if p.cur().Kind == lexer.STRING || p.cur().Kind == lexer.IDENT {
			key = p.advance().Text
		} else {
			p.errorf("expected key in object pattern, got %s", p.cur().Kind)
			p.advance()
		}
		p.expect(lexer.COLON)
		m.Keys = append(m.Keys, key)
		m.Values = append(m.Values, p.parsePatternExpr())
		if p.cur().Kind == lexer.COMMA {
			p.advance()
		}
	}
	p.expect(lexer.RBRACE)
	return m
}

func (p *Parser) parsePatternList(start lexer.Token) ast.Expr {
	p.expect(lexer.LBRACKET)
	l := &ast.ListLit{Loc: p.loc(start)}
	for p.cur().Kind != lexer.RBRACKET && p.cur().Kind != lexer.EOF {
		l.Elems = append(l.Elems, p.parsePatternExpr())
		if p.cur().Kind == lexer.COMMA {
			p.advance()
		}
	}
	p.expect(lexer.RBRACKET)
	return l
}

// --- General expression grammar: or > and > not > comparison > additive >
// multiplicative > unary > postfix > primary.

func (p *Parser) parseExpr() ast.Expr { return p.parseOr() }

func (p *Parser) parseOr() ast.Expr {
	left := p.parseAnd()
	for p.cur().Kind == lexer.OR {
		op := p.advance()
		right := p.parseAnd()
		left = &ast.BinOp{Op: ast.OpOr, Left: left, Right: right, Loc: p.loc(op)}
	}
	return left
}

func (p *Parser) parseAnd() ast.Expr {
	left := p.parseNot()
	for p.cur().Kind == lexer.AND {
		op := p.advance()
		right := p.parseNot()
		left = &ast.BinOp{Op: ast.OpAnd, Left: left, Right: right, Loc: p.loc(op)}
	}
	return left
}

func (p *Parser) parseNot() ast.Expr {
	if p.cur().Kind == lexer.NOT {
		op := p.advance()
		operand := p.parseNot()
		return &ast.UnaryOp{Op: ast.OpNot, Operand: operand, Loc: p.loc(op)}
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() ast.Expr {
	left := p.parseAdditive()
	op, kind := p.comparisonOp()
	if kind == "" {
		return left
	}
	p.advance()
	if kind == ast.OpNotIn {
		p.advance() // consume the paired `in` after `not`
	}
	right := p.parseAdditive()
	return &ast.BinOp{Op: kind, Left: left, Right: right, Loc: p.loc(op)}
}

func (p *Parser) comparisonOp() (lexer.Token, ast.BinOpKind) {
	tok := p.cur()
	switch tok.Kind {
	case lexer.EQ:
		return tok, ast.OpEq
	case lexer.NE:
		return tok, ast.OpNe
	case lexer.LT:
		return tok, ast.OpLt
	case lexer.LE:
		return tok, ast.OpLe
	case lexer.GT:
		return tok, ast.OpGt
	case lexer.GE:
		return tok, ast.OpGe
	case lexer.IN:
		return tok, ast.OpIn
	case lexer.NOT:
		if p.peekAt(1).Kind == lexer.IN {
			return tok, ast.OpNotIn
		}
	}
	return tok, ""
}

func (p *Parser) parseAdditive() ast.Expr {
	left := p.parseMultiplicative()
	for p.cur().Kind == lexer.PLUS || p.cur().Kind == lexer.MINUS {
		op := p.advance()
		right := p.parseMultiplicative()
		kind := ast.OpAdd
		if op.Kind == lexer.MINUS {
			kind = ast.OpSub
		}
		left = &ast.BinOp{Op: kind, Left: left, Right: right, Loc: p.loc(op)}
	}
	return left
}

func (p *Parser) parseMultiplicative() ast.Expr {
	left := p.parseUnary()
	for p.cur().Kind == lexer.STAR || p.cur().Kind == lexer.SLASH {
		op := p.advance()
		right := p.parseUnary()
		kind := ast.OpMul
		if op.Kind == lexer.SLASH {
			kind = ast.OpDiv
		}
		left = &ast.BinOp{Op: kind, Left: left, Right: right, Loc: p.loc(op)}
	}
	return left
}

func (p *Parser) parseUnary() ast.Expr {
	if p.cur().Kind == lexer.MINUS {
		op := p.advance()
		operand := p.parseUnary()
		return &ast.UnaryOp{Op: ast.OpNeg, Operand: operand, Loc: p.loc(op)}
	}
	return p.parsePostfix()
}

func (p *Parser) parsePostfix() ast.Expr {
	expr := p.parsePrimary()
	for {
		switch p.cur().Kind {
		case lexer.DOT:
			dot := p.advance()
			name := p.expect(lexer.IDENT).Text
			expr = &ast.Attr{Recv: expr, Name: name, Loc: p.loc(dot)}
		case lexer.LBRACKET:
			lb := p.advance()
			key := p.parseExpr()
			p.expect(lexer.RBRACKET)
			expr = &ast.Index{Recv: expr, Key: key, Loc: p.loc(lb)}
		case lexer.LPAREN:
			lp := p.advance()
			ident, ok := expr.(*ast.Ident)
			if !ok {
				p.errorf("cannot call a non-identifier expression")
			}
			var args []ast.Expr
			var kwargs map[string]ast.Expr
			for p.cur().Kind != lexer.RPAREN && p.cur().Kind != lexer.EOF {
				if p.cur().Kind == lexer.IDENT && p.peekAt(1).Kind == lexer.ASSIGN {
					kwName := p.advance().Text
					p.advance()
					if kwargs == nil {
						kwargs = make(map[string]ast.Expr)
					}
					kwargs[kwName] = p.parseExpr()
				} else {
					args = append(args, p.parseExpr())
				}
				if p.cur().Kind == lexer.COMMA {
					p.advance()
				}
			}
			p.expect(lexer.RPAREN)
			name := ""
			if ok {
				name = ident.Name
			}
			expr = &ast.Call{Name: name, Args: args, KwArgs: kwargs, Loc: p.loc(lp)}
		default:
			return expr
		}
	}
}

func (p *Parser) parsePrimary() ast.Expr {
	tok := p.cur()
	switch tok.Kind {
	case lexer.IDENT:
		p.advance()
		return &ast.Ident{Name: tok.Text, Loc: p.loc(tok)}
	case lexer.NUMBER:
		p.advance()
		n, _ := strconv.ParseFloat(tok.Text, 64)
		return &ast.Literal{Kind: ast.LitNumber, Value: n, Loc: p.loc(tok)}
	case lexer.STRING:
		p.advance()
		return &ast.Literal{Kind: ast.LitString, Value: tok.Text, Loc: p.loc(tok)}
	case lexer.REGEX:
		p.advance()
		return &ast.Literal{Kind: ast.LitRegex, Value: tok.Text, Loc: p.loc(tok)}
	case lexer.TRUE, lexer.FALSE:
		p.advance()
		return &ast.Literal{Kind: ast.LitBool, Value: tok.Kind == lexer.TRUE, Loc: p.loc(tok)}
	case lexer.NULL:
		p.advance()
		return &ast.Literal{Kind: ast.LitNull, Loc: p.loc(tok)}
	case lexer.CLASSIFIER:
		p.advance()
		return &ast.Classifier{Name: tok.Text, Loc: p.loc(tok)}
	case lexer.STAR:
		p.advance()
		return &ast.Wildcard{Loc: p.loc(tok)}
	case lexer.LPAREN:
		p.advance()
		e := p.parseExpr()
		p.expect(lexer.RPAREN)
		return e
	case lexer.LBRACKET:
		return p.parsePatternList(tok)
	case lexer.LBRACE:
		return p.parsePatternMap(tok)
	default:
		p.errorf("unexpected token %s in expression", tok.Kind)
		p.advance()
		return &ast.Literal{Kind: ast.LitNull, Loc: p.loc(tok)}
	}
}

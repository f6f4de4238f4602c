package parser

import (
	"testing"

	"github.com/tracesec/tracewatch/internal/rules/ast"
)

const inboxExfilPolicy = `from detect import pii

pred clean_sender(msg: Message) := msg.role == "assistant"

raise PolicyViolation("inbox-exfil", tool=b) if:
    (a: ToolCall)
    (b: ToolCall)
    a -> b
    a is tool:get_inbox({})
    b is tool:send_email({"to": r"^(?!Peter$).*$"})
`

func TestParsePolicy_InboxExfil(t *testing.T) {
	pol, err := ParsePolicy("test.tw", inboxExfilPolicy)
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}

	if len(pol.Imports) != 1 || pol.Imports[0].Module != "detect" || pol.Imports[0].Names[0] != "pii" {
		t.Fatalf("imports: %+v", pol.Imports)
	}

	if len(pol.Preds) != 1 || pol.Preds[0].Name != "clean_sender" {
		t.Fatalf("preds: %+v", pol.Preds)
	}
	if len(pol.Preds[0].Params) != 1 || pol.Preds[0].Params[0].Type != ast.TypeMessage {
		t.Fatalf("pred params: %+v", pol.Preds[0].Params)
	}

	if len(pol.Rules) != 1 {
		t.Fatalf("want 1 rule, got %d", len(pol.Rules))
	}
	rule := pol.Rules[0]
	if rule.Ctor.Name != "PolicyViolation" || rule.Ctor.Kind != "PolicyViolation" {
		t.Fatalf("ctor: %+v", rule.Ctor)
	}
	if rule.Ctor.PosMsg == nil {
		t.Fatal("want a positional message expr")
	}
	if lit, ok := rule.Ctor.PosMsg.(*ast.Literal); !ok || lit.Value != "inbox-exfil" {
		t.Fatalf("posmsg: %+v", rule.Ctor.PosMsg)
	}
	if _, ok := rule.Ctor.KwArgs["tool"]; !ok {
		t.Fatalf("kwargs: %+v", rule.Ctor.KwArgs)
	}

	if len(rule.Body) != 5 {
		t.Fatalf("want 5 atoms, got %d: %#v", len(rule.Body), rule.Body)
	}

	vb, ok := rule.Body[0].(*ast.VarBinding)
	if !ok || vb.Var != "a" || vb.Type != ast.TypeToolCall || vb.Domain != nil {
		t.Fatalf("atom 0: %+v", rule.Body[0])
	}

	flow, ok := rule.Body[2].(*ast.FlowAssertion)
	if !ok {
		t.Fatalf("atom 2: %+v", rule.Body[2])
	}
	if id, ok := flow.From.(*ast.Ident); !ok || id.Name != "a" {
		t.Fatalf("flow.From: %+v", flow.From)
	}

	pa, ok := rule.Body[3].(*ast.PatternAssertion)
	if !ok || pa.ToolCall == nil || pa.ToolCall.ToolName != "get_inbox" {
		t.Fatalf("atom 3: %+v", rule.Body[3])
	}

	pa2, ok := rule.Body[4].(*ast.PatternAssertion)
	if !ok || pa2.ToolCall == nil || pa2.ToolCall.ToolName != "send_email" {
		t.Fatalf("atom 4: %+v", rule.Body[4])
	}
	m, ok := pa2.ToolCall.PatternExpr.(*ast.MapLit)
	if !ok || len(m.Keys) != 1 || m.Keys[0] != "to" {
		t.Fatalf("pattern map: %+v", pa2.ToolCall.PatternExpr)
	}
	if rx, ok := m.Values[0].(*ast.Literal); !ok || rx.Kind != ast.LitRegex {
		t.Fatalf("pattern value: %+v", m.Values[0])
	}
}

func TestParsePolicy_NegatedFlow(t *testing.T) {
	src := "raise \"no-flow\" if:\n" +
		"    (a: ToolCall)\n" +
		"    (b: ToolCall)\n" +
		"    not a -> b\n"

	pol, err := ParsePolicy("t", src)
	if err != nil {
		t.Fatalf("ParsePolicy: %v", err)
	}
	flow, ok := pol.Rules[0].Body[2].(*ast.FlowAssertion)
	if !ok || !flow.Negated {
		t.Fatalf("want negated flow assertion, got %+v", pol.Rules[0].Body[2])
	}
}

func TestParsePolicy_SyntaxErrorAccumulates(t *testing.T) {
	src := "raise \"x\" if:\n    (a: Bogus)\n"
	_, err := ParsePolicy("t", src)
	if err == nil {
		t.Fatal("want a diagnostic for an unknown type")
	}
}

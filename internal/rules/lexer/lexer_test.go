package lexer

import "testing"

func kinds(toks []Token) []Kind {
	out := make([]Kind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestLexer_SimpleRule(t *testing.T) {
	src := "raise PolicyViolation(msg) if:\n" +
		"    (msg: Message)\n"

	toks, err := New("test.tw", src).Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}

	want := []Kind{
		RAISE, IDENT, LPAREN, IDENT, RPAREN, IF, COLON, NEWLINE,
		INDENT,
		LPAREN, IDENT, COLON, IDENT, RPAREN, NEWLINE,
		DEDENT, EOF,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %d tokens %v, want %d %v", len(got), got, len(want), want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLexer_StringAndRegex(t *testing.T) {
	toks, err := New("t", `"plain" r"a.*b"`).Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if toks[0].Kind != STRING || toks[0].Text != "plain" {
		t.Errorf("got %+v", toks[0])
	}
	if toks[1].Kind != REGEX || toks[1].Text != "a.*b" {
		t.Errorf("got %+v", toks[1])
	}
}

func TestLexer_Classifier(t *testing.T) {
	toks, err := New("t", "<EMAIL_ADDRESS>").Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	if toks[0].Kind != CLASSIFIER || toks[0].Text != "EMAIL_ADDRESS" {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestLexer_Operators(t *testing.T) {
	toks, err := New("t", "a -> b and not c == 1 in [1,2]").Tokens()
	if err != nil {
		t.Fatalf("Tokens: %v", err)
	}
	want := []Kind{IDENT, ARROW, IDENT, AND, NOT, IDENT, EQ, NUMBER, IN, LBRACKET, NUMBER, COMMA, NUMBER, RBRACKET, EOF}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v want %v", i, got[i], want[i])
		}
	}
}

// Package ast defines the syntax tree produced by parsing a policy file:
// imports, predicate definitions, and rules built from atoms and
// expressions. Every node carries a Location so that compile and
// evaluation errors can point back at the source.
package ast

import "fmt"

// Location identifies a position in a policy source file.
type Location struct {
	File   string
	Line   int // 1-based
	Col    int // 1-based
}

func (l Location) String() string {
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", l.File, l.Line, l.Col)
}

func (l Location) IsValid() bool {
	return l.Line > 0
}

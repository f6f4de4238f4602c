package parser

import (
	"fmt"
	"strings"

	"github.com/tracesec/tracewatch/internal/rules/ast"
)

// Diagnostic is one parse or compile error, carrying its source location
// so tooling can report it precisely instead of aborting blind.
type Diagnostic struct {
	Message  string
	Loc      ast.Location
	Related  *ast.Location // a second location, e.g. the declaration site of a type error
}

func (d *Diagnostic) String() string {
	if d.Related != nil {
		return fmt.Sprintf("%s: %s (declared at %s)", d.Loc, d.Message, d.Related)
	}
	return fmt.Sprintf("%s: %s", d.Loc, d.Message)
}

// DiagnosticList accumulates diagnostics instead of aborting on the
// first one, so a single parse pass can report every syntax error in a
// policy file at once.
type DiagnosticList struct {
	Diagnostics []*Diagnostic
}

func (l *DiagnosticList) Add(loc ast.Location, format string, args ...any) {
	l.Diagnostics = append(l.Diagnostics, &Diagnostic{Message: fmt.Sprintf(format, args...), Loc: loc})
}

func (l *DiagnosticList) AddRelated(loc, related ast.Location, format string, args ...any) {
	l.Diagnostics = append(l.Diagnostics, &Diagnostic{Message: fmt.Sprintf(format, args...), Loc: loc, Related: &related})
}

func (l *DiagnosticList) HasErrors() bool { return len(l.Diagnostics) > 0 }

func (l *DiagnosticList) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d error(s):\n", len(l.Diagnostics))
	for _, d := range l.Diagnostics {
		sb.WriteString("  ")
		sb.WriteString(d.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// ToError returns nil if the list is empty, otherwise the list itself.
func (l *DiagnosticList) ToError() error {
	if !l.HasErrors() {
		return nil
	}
	return l
}

package eval

import (
	"github.com/google/uuid"

	"github.com/tracesec/tracewatch/internal/trace"
)

// PolicyViolation is one fully satisfied rule instance: the error a
// `raise Ctor(...) if: ...` rule constructs once every atom in its body
// held for a particular binding, plus the Ranges that localize which
// parts of the trace made it true.
type PolicyViolation struct {
	ID      string
	Kind    string
	Name    string
	Message string
	Args    map[string]any
	Ranges  []trace.Range
}

func (v *PolicyViolation) Error() string {
	if v.Message != "" {
		return v.Message
	}
	return v.Name
}

func newViolationID() string {
	return uuid.NewString()
}

// AnalysisResult is the outcome of running a compiled policy against a
// trace: every violation an ErrorHandler didn't resolve, every violation
// one did, and any non-fatal Warnings raised while a detector refused or
// a trace event failed to decode cleanly.
type AnalysisResult struct {
	Errors        []*PolicyViolation
	HandledErrors []*PolicyViolation
	Warnings      []*trace.Warning
	Cancelled     bool
}

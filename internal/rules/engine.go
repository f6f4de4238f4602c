// Package rules defines the backend-agnostic contract a policy evaluator
// satisfies, independent of which rule language produced it.
package rules

import (
	"context"

	"github.com/tracesec/tracewatch/internal/eval"
	"github.com/tracesec/tracewatch/internal/trace"
)

// Engine evaluates a compiled policy against a trace. The native DSL
// compiled by internal/rules/compiler and run by internal/eval satisfies
// this directly (*eval.Policy); internal/compat/opa adapts a Rego module
// to the same contract.
type Engine interface {
	Analyze(ctx context.Context, t *trace.Trace, params map[string]trace.Value) (*eval.AnalysisResult, error)
}

var _ Engine = (*eval.Policy)(nil)

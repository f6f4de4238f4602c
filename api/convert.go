package api

import (
	"github.com/tracesec/tracewatch/internal/eval"
	"github.com/tracesec/tracewatch/internal/trace"
)

// FromAnalysisResult converts an internal evaluation result into its wire
// mirror, for any caller (the CLI's --format json, a dashboard, an
// embedder's HTTP handler) that needs to hand the result to an encoder
// with stable, snake_case field names.
func FromAnalysisResult(res *eval.AnalysisResult) AnalysisResult {
	out := AnalysisResult{Cancelled: res.Cancelled}
	for _, v := range res.Errors {
		out.Errors = append(out.Errors, fromViolation(v))
	}
	for _, v := range res.HandledErrors {
		out.HandledErrors = append(out.HandledErrors, fromViolation(v))
	}
	for _, w := range res.Warnings {
		out.Warnings = append(out.Warnings, fromWarning(w))
	}
	return out
}

func fromViolation(v *eval.PolicyViolation) PolicyViolation {
	out := PolicyViolation{
		ID:      v.ID,
		Kind:    v.Kind,
		Name:    v.Name,
		Message: v.Message,
		Args:    v.Args,
	}
	for _, r := range v.Ranges {
		out.Ranges = append(out.Ranges, fromRange(r))
	}
	return out
}

func fromRange(r trace.Range) Range {
	return Range{
		ObjectID: string(r.ObjectID),
		JSONPath: r.JSONPath,
		Start:    r.Start,
		End:      r.End,
	}
}

func fromWarning(w *trace.Warning) Warning {
	return Warning{
		Kind:    string(w.Kind),
		Message: w.Message,
		EventID: string(w.EventID),
	}
}

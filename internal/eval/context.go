package eval

import (
	"github.com/tracesec/tracewatch/internal/detect"
	"github.com/tracesec/tracewatch/internal/rules/ast"
	"github.com/tracesec/tracewatch/internal/trace"
	"github.com/tracesec/tracewatch/internal/trace/flow"
)

// EvalContext carries everything a rule body resolves against: the trace
// it quantifies over, the dataflow graph behind `->`, the detector table
// behind classifiers and predicate-style calls, the policy's own
// predicate definitions (for nested pred(...) calls), and caller-supplied
// free parameters.
//
// Detectors is the concrete detect.DetectorTable rather than the leaner
// match.DetectorTable the pattern matcher declares: boolean detector
// calls inside rule bodies (`prompt_injection(out.content)`) need the
// Score a threshold= keyword gates on, which match.DetectorTable's
// boolean/tag-only shape doesn't carry. detect.DetectorTable.AsMatchTable
// bridges to the matcher when a PatternAssertion needs it.
type EvalContext struct {
	Trace     *trace.Trace
	Graph     *flow.Graph
	Detectors detect.DetectorTable
	Preds     map[string]*ast.PredicateDef
	Params    map[string]trace.Value
	Cancel    <-chan struct{}
}

func (ec *EvalContext) cancelled() bool {
	if ec.Cancel == nil {
		return false
	}
	select {
	case <-ec.Cancel:
		return true
	default:
		return false
	}
}

// AccessRecorder accumulates the Ranges touched while evaluating one
// candidate binding, so a satisfied rule attaches only the Ranges that
// actually participated in that specific binding — spec.md §8 invariant 4
// (localization soundness).
type AccessRecorder struct {
	ranges []trace.Range
}

func (r *AccessRecorder) record(rs ...trace.Range) {
	r.ranges = append(r.ranges, rs...)
}

func (r *AccessRecorder) drain() []trace.Range {
	out := r.ranges
	r.ranges = nil
	return out
}

package detect

import (
	"context"
	"fmt"

	"github.com/tracesec/tracewatch/internal/rules/match"
	"github.com/tracesec/tracewatch/internal/trace"
)

// DetectorTable resolves a name used in a rule (`pii(...)`, `is tool:... `
// classifiers, range-restriction call checks) to a registered Detector.
type DetectorTable struct {
	byName map[string]Detector
}

// NewTable builds a DetectorTable from the given detectors, keyed by
// their own Name(). Later entries with the same name win, so callers can
// override a built-in by passing it after DefaultDetectors().
func NewTable(detectors ...Detector) DetectorTable {
	byName := make(map[string]Detector, len(detectors))
	for _, d := range detectors {
		byName[d.Name()] = d
	}
	return DetectorTable{byName: byName}
}

// DefaultDetectors returns the built-in detector set: pii, secrets,
// prompt_injection, moderation, is_code.
func DefaultDetectors() []Detector {
	return []Detector{
		NewPIIDetector(),
		NewSecretDetector(),
		NewInjectionDetector(),
		NewModerationDetector(nil),
		NewCodeDetector(),
	}
}

// Resolve looks up a detector by name without calling it.
func (t DetectorTable) Resolve(name string) (Detector, bool) {
	d, ok := t.byName[name]
	return d, ok
}

// HasDetector satisfies compiler.SymbolResolver: a rule may call any
// registered detector by name as if it were a predicate.
func (t DetectorTable) HasDetector(name string) bool {
	_, ok := t.byName[name]
	return ok
}

// Call resolves name and invokes it, recovering any panic and converting
// both a missing registration and a returned error into a Warning —
// spec.md's "runtime exceptions in detectors are caught, converted to a
// warning" (a detector failure must never abort rule evaluation).
func (t DetectorTable) Call(ctx context.Context, name string, v trace.Value, opts map[string]any) (res Result, warn *trace.Warning) {
	d, ok := t.byName[name]
	if !ok {
		return Result{}, &trace.Warning{Kind: trace.WarningDetectorUnavailable, Message: fmt.Sprintf("no such detector %q", name)}
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{}
			warn = &trace.Warning{Kind: trace.WarningDetectorUnavailable, Message: fmt.Sprintf("detector %q panicked: %v", name, r)}
		}
	}()

	out, err := d.Detect(ctx, v, opts)
	if err != nil {
		return Result{}, &trace.Warning{Kind: trace.WarningDetectorUnavailable, Message: fmt.Sprintf("detector %q: %v", name, err)}
	}
	return out, nil
}

// AsMatchTable adapts t to the boolean/tag-returning shape the semantic
// pattern matcher's <CLASSIFIER> patterns expect.
func (t DetectorTable) AsMatchTable() match.DetectorTable {
	return matchAdapter{t}
}

type matchAdapter struct{ t DetectorTable }

func (a matchAdapter) Call(ctx context.Context, name string, v trace.Value, opts map[string]any) (bool, []string, *trace.Warning) {
	res, warn := a.t.Call(ctx, name, v, opts)
	if warn != nil {
		return false, nil, warn
	}
	return res.Triggered || len(res.Tags) > 0, res.Tags, nil
}

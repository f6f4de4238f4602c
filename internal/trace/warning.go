package trace

// WarningKind enumerates the non-fatal conditions the core engine can
// surface alongside an AnalysisResult, per the error-handling design:
// parse/type errors fail loudly, but everything else becomes a warning.
type WarningKind string

const (
	WarningTraceInput         WarningKind = "TraceInputError"
	WarningDetectorUnavailable WarningKind = "DetectorUnavailable"
)

// Warning is a non-fatal issue encountered while ingesting a trace or
// evaluating a rule.
type Warning struct {
	Kind    WarningKind
	Message string
	EventID EventID // may be empty
}

func (w *Warning) Error() string { return string(w.Kind) + ": " + w.Message }

package match

import (
	"context"
	"strconv"

	"github.com/tracesec/tracewatch/internal/trace"
)

// MatchToolCall implements `call is tool:NAME(PATTERN)`. toolName == ""
// means bare `tool`, matching any tool call. A refusing or erroring
// detector inside a Classifier pattern surfaces as a *trace.Warning
// rather than a match failure — callers must treat that as "unknown",
// not "false" (spec.md §4.7).
func MatchToolCall(ctx context.Context, call *trace.Event, toolName string, pat Pattern, dt DetectorTable) (bool, []trace.Range, *trace.Warning) {
	if call.Kind != trace.KindToolCall {
		return false, nil, nil
	}
	if toolName != "" && call.ToolName != toolName {
		return false, nil, nil
	}

	args := trace.NewValue(call.Arguments)
	ok, ranges, warn := pat.Match(ctx, args, []PathSeg{{Key: "function"}, {Key: "arguments"}}, dt)
	if warn != nil {
		return false, nil, warn
	}
	if !ok {
		return false, nil, nil
	}

	out := make([]trace.Range, len(ranges))
	for i, r := range ranges {
		out[i] = trace.Range{ObjectID: call.ID, JSONPath: strconv.Itoa(call.Index) + "." + r.JSONPath}
	}
	return true, out, nil
}

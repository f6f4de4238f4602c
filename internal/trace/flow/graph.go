// Package flow derives the dataflow ("flows-to") relation over a trace's
// events, implementing the conservative over-approximation described by
// the dataflow operator: any earlier context that could plausibly have
// influenced a later tool call is admissible.
package flow

import "github.com/tracesec/tracewatch/internal/trace"

// Graph computes and memoizes the flows-to relation for one trace. A
// fresh Graph should be built per batch evaluation; the incremental
// monitor instead keeps one Graph alive across Check calls and grows it
// as new events are appended.
type Graph struct {
	tr *trace.Trace

	// sourcesOf[b.ID] is the set of event IDs A such that A -> b,
	// computed lazily and cached on first query.
	sourcesOf map[trace.EventID][]*trace.Event
}

// NewGraph creates a dataflow graph over the given trace.
func NewGraph(t *trace.Trace) *Graph {
	return &Graph{tr: t, sourcesOf: make(map[trace.EventID][]*trace.Event)}
}

// FlowsTo reports whether a -> b holds.
func (g *Graph) FlowsTo(a, b *trace.Event) bool {
	for _, src := range g.SourcesOf(b) {
		if src.ID == a.ID {
			return true
		}
	}
	return false
}

// SourcesOf returns every event A such that A -> b, in trace order,
// deduplicated by identity. The result is cached per target event.
func (g *Graph) SourcesOf(b *trace.Event) []*trace.Event {
	if cached, ok := g.sourcesOf[b.ID]; ok {
		return cached
	}

	var sources []*trace.Event
	seen := make(map[trace.EventID]bool)
	add := func(e *trace.Event) {
		if !seen[e.ID] {
			seen[e.ID] = true
			sources = append(sources, e)
		}
	}

	switch b.Kind {
	case trace.KindToolOutput:
		// (i) ToolCall -> ToolOutput when ids match.
		if call, ok := g.tr.ToolCallByID(b.OutputToolCallID); ok && call.Index < b.Index {
			add(call)
		}

	case trace.KindToolCall:
		// (ii) ToolOutput|Message|ToolCall -> ToolCall: any earlier
		// top-level item in the same conversation window flows to a
		// later ToolCall, unless a user/system message strictly between
		// the candidate source and b clears context — this admits an
		// earlier ToolCall itself as a source (not just its eventual
		// ToolOutput), matching the "every prior top-level item flows to
		// every later one" shape of the reference dataflow walk. Parallel
		// sibling ToolCalls never flow to one another (Open Question #3:
		// resolved as non-flowing).
		windowStart := windowStart(g.tr, b.Index)
		for _, e := range g.tr.AllEvents() {
			if e.Index < windowStart || e.Index >= b.Index {
				continue
			}
			if e.Kind == trace.KindToolCall && e.Parent == b.Parent && b.Parent != nil {
				continue
			}
			if e.Kind == trace.KindToolOutput || e.Kind == trace.KindMessage || e.Kind == trace.KindToolCall {
				if contextClearedBetween(g.tr, e.Index, b.Index) {
					continue
				}
				add(e)
			}
		}

	case trace.KindMessage:
		// (iii) Message|ToolOutput -> later event in the same window.
		windowStart := windowStart(g.tr, b.Index)
		for _, e := range g.tr.AllEvents() {
			if e.Index < windowStart || e.Index >= b.Index {
				continue
			}
			if e.Kind == trace.KindToolOutput || e.Kind == trace.KindMessage {
				add(e)
			}
		}
	}

	g.sourcesOf[b.ID] = sources
	return sources
}

// windowStart returns the smallest top-level Index still inside the same
// conversation window as targetIndex: a window is the maximal run of
// events with no intervening "system" role reset marker at or before
// targetIndex. Windows are system-message-delimited only — rule (iii)
// relies on that boundary as-is. A "user"/"system" message strictly
// between a candidate source and targetIndex additionally clears context
// for rule (ii) specifically; see contextClearedBetween.
func windowStart(t *trace.Trace, targetIndex int) int {
	start := 0
	for _, e := range t.Events {
		if e.Index >= targetIndex {
			break
		}
		if e.Kind == trace.KindMessage && e.Role == "system" {
			start = e.Index + 1
		}
	}
	return start
}

// contextClearedBetween reports whether a Message with Role "user" or
// "system" occurs strictly between sourceIndex and targetIndex, which
// clears context for rule (ii) (ToolOutput/Message -> ToolCall) even
// within an otherwise-open conversation window.
func contextClearedBetween(t *trace.Trace, sourceIndex, targetIndex int) bool {
	for _, e := range t.Events {
		if e.Index <= sourceIndex || e.Index >= targetIndex {
			continue
		}
		if e.Kind == trace.KindMessage && (e.Role == "user" || e.Role == "system") {
			return true
		}
	}
	return false
}

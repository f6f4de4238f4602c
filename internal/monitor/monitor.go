// Package monitor runs a policy incrementally over a trace that grows one
// batch of pending events at a time, instead of re-reporting every
// violation on every call.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/tracesec/tracewatch/internal/eval"
	"github.com/tracesec/tracewatch/internal/trace"
	"github.com/tracesec/tracewatch/internal/trace/flow"
)

// Options configures a Monitor's behavior.
type Options struct {
	// RaiseUnhandled, when true, makes Check return a *BlockingViolation
	// instead of a normal result for any new violation whose Ranges touch
	// one of the pending events just submitted — the caller is expected to
	// treat this as "stop, do not let this turn's output proceed."
	RaiseUnhandled bool

	// Params are bound as the policy's free parameters on every Check call.
	Params map[string]trace.Value
}

// Monitor wraps a compiled Policy with the state needed to evaluate a
// trace incrementally: a dataflow Graph and id tables that grow in place
// as each Check call appends pending events, and the fingerprints of
// violations already reported, so that re-running the policy over a
// larger virtual trace doesn't re-surface what an earlier Check returned.
type Monitor struct {
	policy         *eval.Policy
	raiseUnhandled bool
	params         map[string]trace.Value

	tr      *trace.Trace
	graph   *flow.Graph
	seen    map[uint64]struct{}
	pastLen int
}

// NewMonitor starts a monitor with no committed history.
func NewMonitor(policy *eval.Policy, opts Options) *Monitor {
	policy.SetRaiseUnhandled(opts.RaiseUnhandled)
	return &Monitor{
		policy:         policy,
		raiseUnhandled: opts.RaiseUnhandled,
		params:         opts.Params,
		seen:           make(map[uint64]struct{}),
	}
}

// BlockingViolation is returned by Check when RaiseUnhandled is set and a
// newly discovered violation's Ranges reference one of the events just
// submitted as pending — i.e. the policy caught something about the turn
// that is still in flight, not just something already committed to history.
type BlockingViolation struct {
	Violations []*eval.PolicyViolation
}

func (b *BlockingViolation) Error() string {
	if len(b.Violations) == 1 {
		return fmt.Sprintf("blocked by policy: %s", b.Violations[0].Error())
	}
	return fmt.Sprintf("blocked by policy: %d violations", len(b.Violations))
}

// Check builds the virtual trace past++pending, evaluates the policy over
// it, and returns only the violations that haven't already been reported
// by an earlier Check call. past must be exactly what an earlier Check
// call appended as pending (the monitor's own committed history); passing
// anything else desyncs the incrementally grown Graph from the trace. A
// caller that only ever grows the trace through this Monitor can pass
// nil for past after the very first call and rely on the Monitor's own
// bookkeeping instead — see CheckNext.
func (m *Monitor) Check(ctx context.Context, past, pending []*trace.Event) (*eval.AnalysisResult, error) {
	if m.tr == nil {
		tr, _, err := trace.NewTrace(nil, trace.Lax)
		if err != nil {
			return nil, err
		}
		m.tr = tr
		m.graph = flow.NewGraph(m.tr)
	}
	if len(past) > m.pastLen {
		if _, err := m.tr.Extend(past[m.pastLen:], trace.Lax); err != nil {
			return nil, err
		}
		m.pastLen = len(m.tr.Events)
	}

	pendingIDs := make(map[trace.EventID]bool, len(pending))
	warnings, err := m.tr.Extend(pending, trace.Lax)
	if err != nil {
		return nil, err
	}
	for _, e := range pending {
		pendingIDs[e.ID] = true
		if e.Kind == trace.KindMessage {
			for _, tc := range e.ToolCalls {
				pendingIDs[tc.ID] = true
			}
		}
	}
	m.pastLen = len(m.tr.Events)

	ec := &eval.EvalContext{
		Trace:     m.tr,
		Graph:     m.graph,
		Detectors: m.policy.Detectors(),
		Preds:     m.policy.Preds(),
		Params:    m.params,
	}

	res, err := eval.Evaluate(ctx, ec, m.policy.Compiled())
	if err != nil {
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)

	var freshErrors []*eval.PolicyViolation
	newFingerprints := make(map[uint64]struct{})
	for _, v := range res.Errors {
		fp := fingerprint(v)
		if _, ok := m.seen[fp]; ok {
			continue
		}
		newFingerprints[fp] = struct{}{}
		freshErrors = append(freshErrors, v)
	}
	for fp := range newFingerprints {
		m.seen[fp] = struct{}{}
	}
	res.Errors = freshErrors

	// Classify routes newly-seen violations through any registered
	// ErrorHandler, same as Policy.Analyze — skipped when raiseUnhandled
	// is set, since then every violation must stay unhandled (§9 step 3).
	m.policy.Classify(ctx, res)

	var fresh, blocking []*eval.PolicyViolation
	for _, v := range res.Errors {
		if m.raiseUnhandled && referencesAny(v, pendingIDs) {
			blocking = append(blocking, v)
			continue
		}
		fresh = append(fresh, v)
	}
	res.Errors = fresh

	if len(blocking) > 0 {
		return res, &BlockingViolation{Violations: blocking}
	}
	return res, nil
}

// SwapPolicy replaces the policy Check evaluates against, without
// disturbing the committed trace, dataflow Graph, or already-seen
// fingerprints — for a long-running watch process that reloads its
// policy file on edit. A rule renamed or removed by the new policy can
// cause its old fingerprints to simply go stale in seen, which is
// harmless: they just never match anything again.
func (m *Monitor) SwapPolicy(policy *eval.Policy) {
	policy.SetRaiseUnhandled(m.raiseUnhandled)
	m.policy = policy
}

// CheckNext is Check with past fixed to whatever this Monitor has already
// committed — the common case, where the caller never re-submits history
// it has already handed the monitor.
func (m *Monitor) CheckNext(ctx context.Context, pending []*trace.Event) (*eval.AnalysisResult, error) {
	return m.Check(ctx, nil, pending)
}

func referencesAny(v *eval.PolicyViolation, ids map[trace.EventID]bool) bool {
	for _, r := range v.Ranges {
		if ids[r.ObjectID] {
			return true
		}
	}
	return false
}

// fingerprint identifies a violation by what raised it, not by when: the
// rule's error name, the sorted set of events its Ranges touch, and its
// constructor arguments (JSON-marshaled, which the stdlib already emits
// with sorted map keys). Two Check calls that re-derive the same
// violation from the same evidence produce the same fingerprint even
// though the *PolicyViolation values themselves differ (ID is random per
// call) — this is what makes the monitor's output independent of how
// many batches the trace was split across.
func fingerprint(v *eval.PolicyViolation) uint64 {
	ids := make([]string, 0, len(v.Ranges))
	seen := make(map[string]bool, len(v.Ranges))
	for _, r := range v.Ranges {
		id := string(r.ObjectID)
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	sort.Strings(ids)

	args, _ := json.Marshal(v.Args)

	h := fnv.New64a()
	h.Write([]byte(v.Name))
	h.Write([]byte{0})
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	h.Write(args)
	return h.Sum64()
}

// Package detect implements the named detector plugins rule bodies call
// into: pii, secrets, prompt_injection, moderation, is_code. Every
// detector is a pure heuristic — no ML model is loaded, per the
// specification this engine targets — wired the same way a rule's own
// pred calls are, through a name-keyed table rather than a Go type switch.
package detect

import (
	"context"

	"github.com/tracesec/tracewatch/internal/trace"
)

// Result is what a detector call returns to a rule: a boolean verdict
// for predicate-style detectors (is_code, prompt_injection), a tag list
// for entity detectors (pii, secrets, moderation), and an optional
// confidence score a rule may gate on via threshold=.
type Result struct {
	Triggered bool
	Tags      []string
	Score     float64
}

// Detector is one named plugin. Implementations must respect ctx and
// return promptly — Call gives every detector a hard deadline via ctx
// and treats a slow detector the same as an erroring one.
type Detector interface {
	Name() string
	Detect(ctx context.Context, value trace.Value, opts map[string]any) (Result, error)
}

// stringSliceOpt reads a []string-shaped kwarg out of opts. A policy
// list literal such as entities=["EMAIL_ADDRESS"] decodes as []any, so
// both []string and []any (of strings) are accepted.
func stringSliceOpt(opts map[string]any, name string) ([]string, bool) {
	switch v := opts[name].(type) {
	case []string:
		return v, true
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

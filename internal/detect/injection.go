package detect

import (
	"context"
	"regexp"

	"github.com/tracesec/tracewatch/internal/trace"
)

// injectionPhrases are fixed red-flag phrases a real deployment would
// back with a trained classifier; this heuristic stand-in scores a hit
// per matched phrase.
var injectionPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore (?:all |the )?(?:previous|prior|above) instructions`),
	regexp.MustCompile(`(?i)disregard (?:the )?(?:system prompt|previous instructions)`),
	regexp.MustCompile(`(?i)you are now (?:in )?(?:developer|DAN|unrestricted) mode`),
	regexp.MustCompile(`(?i)forget (?:everything|all) (?:you (?:were|have been) told|above)`),
	regexp.MustCompile(`(?i)new instructions?:`),
	regexp.MustCompile(`(?i)reveal your (?:system prompt|instructions)`),
	regexp.MustCompile(`(?i)act as (?:if you (?:are|were)|an?) (?:unfiltered|unrestricted|jailbroken)`),
}

// InjectionDetector is a phrase-list heuristic for prompt injection,
// gated by an optional threshold= keyword (score = matched phrases /
// total phrases).
type InjectionDetector struct {
	phrases []*regexp.Regexp
}

// NewInjectionDetector builds an InjectionDetector with the default
// phrase table.
func NewInjectionDetector() *InjectionDetector {
	return &InjectionDetector{phrases: injectionPhrases}
}

func (d *InjectionDetector) Name() string { return "prompt_injection" }

func (d *InjectionDetector) Detect(_ context.Context, v trace.Value, opts map[string]any) (Result, error) {
	s, ok := v.AsString()
	if !ok {
		return Result{}, nil
	}

	hits := 0
	for _, re := range d.phrases {
		if re.MatchString(s) {
			hits++
		}
	}
	score := float64(hits) / float64(len(d.phrases))

	threshold := 0.0 // any single phrase match triggers by default
	if t, ok := opts["threshold"].(float64); ok {
		threshold = t
	}

	return Result{Triggered: hits > 0 && score >= threshold, Score: score}, nil
}

package detect

import (
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/tracesec/tracewatch/internal/trace"
)

// piiPattern is a named regex entity recognizer, in the same table shape
// the secret scanner uses for its own patterns.
type piiPattern struct {
	Tag   string
	Regex *regexp.Regexp
}

func defaultPIIPatterns() []piiPattern {
	return []piiPattern{
		{Tag: "EMAIL_ADDRESS", Regex: regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)},
		{Tag: "PHONE_NUMBER", Regex: regexp.MustCompile(`(?:\+?\d{1,3}[\s.\-]?)?\(?\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`)},
		{Tag: "LOCATION", Regex: regexp.MustCompile(`\b\d{1,5}\s+[A-Z][a-zA-Z]*(?:\s+[A-Z][a-zA-Z]*)*\s+(?:St|Street|Ave|Avenue|Rd|Road|Blvd|Dr|Drive|Ln|Lane)\b|\b\d{5}(?:-\d{4})?\b`)},
	}
}

// PIIDetector flags email addresses, phone numbers, postal-code/street
// addresses, and capitalized-bigram names — a heuristic stand-in for the
// ML-backed entity recognizer a real deployment would load (no such
// model is in scope here).
type PIIDetector struct {
	patterns []piiPattern
}

// NewPIIDetector builds a PIIDetector with the default pattern table.
func NewPIIDetector() *PIIDetector {
	return &PIIDetector{patterns: defaultPIIPatterns()}
}

func (d *PIIDetector) Name() string { return "pii" }

func (d *PIIDetector) Detect(_ context.Context, v trace.Value, opts map[string]any) (Result, error) {
	s, ok := v.AsString()
	if !ok {
		return Result{}, nil
	}

	var wanted map[string]bool
	if entities, ok := stringSliceOpt(opts, "entities"); ok && len(entities) > 0 {
		wanted = make(map[string]bool, len(entities))
		for _, e := range entities {
			wanted[e] = true
		}
	}

	seen := map[string]bool{}
	for _, p := range d.patterns {
		if wanted != nil && !wanted[p.Tag] {
			continue
		}
		if p.Regex.MatchString(s) {
			seen[p.Tag] = true
		}
	}
	if (wanted == nil || wanted["PERSON"]) && hasCapitalizedBigram(s) {
		seen["PERSON"] = true
	}

	if len(seen) == 0 {
		return Result{}, nil
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	return Result{Triggered: true, Tags: tags}, nil
}

// hasCapitalizedBigram flags two consecutive capitalized words as a
// crude full-name heuristic ("Jane Smith"), deliberately permissive —
// it is meant to catch the obvious case, not to replace NER.
func hasCapitalizedBigram(s string) bool {
	words := strings.Fields(s)
	for i := 0; i+1 < len(words); i++ {
		if isCapitalizedWord(words[i]) && isCapitalizedWord(words[i+1]) {
			return true
		}
	}
	return false
}

func isCapitalizedWord(w string) bool {
	w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
	if len(w) < 2 {
		return false
	}
	r := []rune(w)
	if !unicode.IsUpper(r[0]) {
		return false
	}
	for _, c := range r[1:] {
		if !unicode.IsLower(c) {
			return false
		}
	}
	return true
}

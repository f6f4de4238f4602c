// Package match implements the semantic pattern language used by
// `call is tool:NAME(PATTERN)` assertions: structural matching of a
// trace.Value against literals, regexes, wildcards, PII/moderation
// classifiers, and nested object/array shapes.
package match

import (
	"context"
	"regexp"

	"github.com/tracesec/tracewatch/internal/trace"
)

// PathSeg is one step of the path accumulated while descending into a
// matched value, mirroring trace.PathSeg so leaf matches can build a
// trace.Range without the caller threading state back out by hand.
type PathSeg = trace.PathSeg

// DetectorTable resolves classifier names (`pii`, `moderation`, …) to a
// callable detector. Satisfied by internal/detect.DetectorTable.
type DetectorTable interface {
	Call(ctx context.Context, name string, v trace.Value, opts map[string]any) (Triggered bool, Tags []string, warning *trace.Warning)
}

// Pattern is one node of the pattern language.
type Pattern interface {
	Match(ctx context.Context, v trace.Value, path []PathSeg, dt DetectorTable) (bool, []trace.Range, *trace.Warning)
}

// Literal matches a string value exactly.
type Literal struct{ Want string }

func (p Literal) Match(_ context.Context, v trace.Value, path []PathSeg, _ DetectorTable) (bool, []trace.Range, *trace.Warning) {
	s, ok := v.AsString()
	if !ok || s != p.Want {
		return false, nil, nil
	}
	return true, leafRange(path), nil
}

// NumberLit matches a numeric value exactly.
type NumberLit struct{ Want float64 }

func (p NumberLit) Match(_ context.Context, v trace.Value, path []PathSeg, _ DetectorTable) (bool, []trace.Range, *trace.Warning) {
	n, ok := v.AsNumber()
	if !ok || n != p.Want {
		return false, nil, nil
	}
	return true, leafRange(path), nil
}

// BoolLit matches a boolean value exactly.
type BoolLit struct{ Want bool }

func (p BoolLit) Match(_ context.Context, v trace.Value, path []PathSeg, _ DetectorTable) (bool, []trace.Range, *trace.Warning) {
	b, ok := v.AsBool()
	if !ok || b != p.Want {
		return false, nil, nil
	}
	return true, leafRange(path), nil
}

// NullLit matches the null value.
type NullLit struct{}

func (NullLit) Match(_ context.Context, v trace.Value, path []PathSeg, _ DetectorTable) (bool, []trace.Range, *trace.Warning) {
	if !v.IsNull() {
		return false, nil, nil
	}
	return true, leafRange(path), nil
}

// Regex matches a string value that is fully matched by a compiled
// ECMA-compatible pattern.
type Regex struct{ Re *regexp.Regexp }

func (p Regex) Match(_ context.Context, v trace.Value, path []PathSeg, _ DetectorTable) (bool, []trace.Range, *trace.Warning) {
	s, ok := v.AsString()
	if !ok {
		return false, nil, nil
	}
	loc := p.Re.FindStringIndex(s)
	if loc == nil || loc[0] != 0 || loc[1] != len(s) {
		return false, nil, nil
	}
	return true, leafRange(path), nil
}

// Wildcard matches any value, including a missing key.
type Wildcard struct{}

func (Wildcard) Match(_ context.Context, v trace.Value, path []PathSeg, _ DetectorTable) (bool, []trace.Range, *trace.Warning) {
	return true, leafRange(path), nil
}

// Classifier matches a string value flagged by a named detector as
// containing the given entity/category, e.g. <EMAIL_ADDRESS>.
type Classifier struct{ Name string }

// classifierDetector maps a pattern-language classifier token to the
// detector name and tag it expects back.
var classifierDetector = map[string]struct{ Detector, Tag string }{
	"EMAIL_ADDRESS": {"pii", "EMAIL_ADDRESS"},
	"PHONE_NUMBER":  {"pii", "PHONE_NUMBER"},
	"LOCATION":      {"pii", "LOCATION"},
	"PERSON":        {"pii", "PERSON"},
	"MODERATED":     {"moderation", "MODERATED"},
}

func (p Classifier) Match(ctx context.Context, v trace.Value, path []PathSeg, dt DetectorTable) (bool, []trace.Range, *trace.Warning) {
	s, ok := v.AsString()
	if !ok {
		return false, nil, nil
	}
	target, known := classifierDetector[p.Name]
	if !known {
		return false, nil, &trace.Warning{Kind: trace.WarningDetectorUnavailable, Message: "unknown classifier " + p.Name}
	}
	_, tags, warn := dt.Call(ctx, target.Detector, trace.NewValue(s), nil)
	if warn != nil {
		return false, nil, warn
	}
	for _, tag := range tags {
		if tag == target.Tag {
			return true, leafRange(path), nil
		}
	}
	return false, nil, nil
}

// Object matches a mapping: every specified key must match its
// subpattern (extra keys are ignored); a missing key only matches if
// the subpattern is Wildcard.
type Object struct {
	Keys   []string
	Values []Pattern
}

func (p Object) Match(ctx context.Context, v trace.Value, path []PathSeg, dt DetectorTable) (bool, []trace.Range, *trace.Warning) {
	m, ok := v.AsMap()
	if !ok {
		return false, nil, nil
	}
	var ranges []trace.Range
	for i, key := range p.Keys {
		child, present := m[key]
		if !present {
			if _, isWild := p.Values[i].(Wildcard); isWild {
				continue
			}
			return false, nil, nil
		}
		ok, rs, warn := p.Values[i].Match(ctx, child, append(path, trace.PathSeg{Key: key}), dt)
		if warn != nil {
			return false, nil, warn
		}
		if !ok {
			return false, nil, nil
		}
		ranges = append(ranges, rs...)
	}
	return true, ranges, nil
}

// ArrayPrefix matches a list whose first N elements each match the
// corresponding subpattern; extra elements are ignored.
type ArrayPrefix struct {
	Elems []Pattern
}

func (p ArrayPrefix) Match(ctx context.Context, v trace.Value, path []PathSeg, dt DetectorTable) (bool, []trace.Range, *trace.Warning) {
	list, ok := v.AsList()
	if !ok || len(list) < len(p.Elems) {
		return false, nil, nil
	}
	var ranges []trace.Range
	for i, sub := range p.Elems {
		ok, rs, warn := sub.Match(ctx, list[i], append(path, trace.PathSeg{Index: i, IsIndex: true}), dt)
		if warn != nil {
			return false, nil, warn
		}
		if !ok {
			return false, nil, nil
		}
		ranges = append(ranges, rs...)
	}
	return true, ranges, nil
}

func leafRange(path []PathSeg) []trace.Range {
	segs := make([]PathSeg, len(path))
	copy(segs, path)
	return []trace.Range{{JSONPath: jsonPath(segs)}}
}

func jsonPath(segs []PathSeg) string {
	s := ""
	for i, seg := range segs {
		if i > 0 {
			s += "."
		}
		s += seg.String()
	}
	return s
}

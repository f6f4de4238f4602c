package detect

import (
	"context"
	"regexp"
	"strings"

	"github.com/tracesec/tracewatch/internal/trace"
)

// defaultModerationCategories maps a moderation category name to a
// phrase list that heuristically flags it, the same mechanism
// InjectionDetector uses for its own phrase table.
func defaultModerationCategories() map[string][]*regexp.Regexp {
	return map[string][]*regexp.Regexp{
		"violence": {
			regexp.MustCompile(`(?i)\b(?:kill|murder|assault|attack)\b.{0,20}\b(?:you|them|him|her)\b`),
		},
		"self_harm": {
			regexp.MustCompile(`(?i)\b(?:kill myself|suicide|self[- ]harm|end my life)\b`),
		},
		"hate": {
			regexp.MustCompile(`(?i)\b(?:racial slur|ethnic slur)\b`),
		},
		"sexual": {
			regexp.MustCompile(`(?i)\bexplicit sexual content\b`),
		},
	}
}

// ModerationDetector flags text against a configurable category denylist,
// returning a <MODERATED> tag per matched category — a stand-in for the
// hosted moderation endpoint a real deployment would call.
type ModerationDetector struct {
	categories map[string][]*regexp.Regexp
}

// NewModerationDetector builds a ModerationDetector. A nil categories map
// uses the built-in defaults.
func NewModerationDetector(categories map[string][]*regexp.Regexp) *ModerationDetector {
	if categories == nil {
		categories = defaultModerationCategories()
	}
	return &ModerationDetector{categories: categories}
}

func (d *ModerationDetector) Name() string { return "moderation" }

func (d *ModerationDetector) Detect(_ context.Context, v trace.Value, opts map[string]any) (Result, error) {
	s, ok := v.AsString()
	if !ok {
		return Result{}, nil
	}

	wanted := d.categories
	if cats, ok := stringSliceOpt(opts, "categories"); ok && len(cats) > 0 {
		wanted = make(map[string][]*regexp.Regexp, len(cats))
		for _, c := range cats {
			if res, ok := d.categories[strings.ToLower(c)]; ok {
				wanted[c] = res
			}
		}
	}

	var hit bool
	for _, patterns := range wanted {
		for _, re := range patterns {
			if re.MatchString(s) {
				hit = true
				break
			}
		}
	}
	if !hit {
		return Result{}, nil
	}
	return Result{Triggered: true, Tags: []string{"MODERATED"}}, nil
}

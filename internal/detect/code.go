package detect

import (
	"context"
	"regexp"
	"strings"

	"github.com/tracesec/tracewatch/internal/trace"
)

var codeKeywordRe = regexp.MustCompile(`\b(?:def|function|class|import|const|var|let|return|if|else|for|while|public|private|static|void|int|struct|fn|package)\b`)

// CodeDetector is a language-agnostic heuristic for "this string is
// probably source code": keyword density plus a bracket/semicolon/
// indentation signal, scored 0..1.
type CodeDetector struct{}

// NewCodeDetector builds a CodeDetector.
func NewCodeDetector() *CodeDetector { return &CodeDetector{} }

func (d *CodeDetector) Name() string { return "is_code" }

func (d *CodeDetector) Detect(_ context.Context, v trace.Value, opts map[string]any) (Result, error) {
	s, ok := v.AsString()
	if !ok {
		return Result{}, nil
	}

	lines := strings.Split(s, "\n")
	if len(lines) == 0 {
		return Result{}, nil
	}

	keywordHits := len(codeKeywordRe.FindAllString(s, -1))
	braceDensity := float64(strings.Count(s, "{") + strings.Count(s, "}") + strings.Count(s, ";")) / float64(len(s)+1)
	indented := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "    ") || strings.HasPrefix(l, "\t") {
			indented++
		}
	}
	indentRatio := float64(indented) / float64(len(lines))

	score := minF(1.0, float64(keywordHits)/5.0*0.5+braceDensity*50*0.3+indentRatio*0.2)

	threshold := 0.5
	if t, ok := opts["threshold"].(float64); ok {
		threshold = t
	}

	return Result{Triggered: score >= threshold, Score: score}, nil
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunWatch_ReportsViolationAcrossBatches(t *testing.T) {
	watchRaiseUnhandled = false
	watchReload = false
	watchFollow = false

	cmd := watchCmd
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	err := runWatch(cmd, []string{
		"../../../testdata/policies/inbox_exfil.tw",
		"../../../testdata/traces/inbox_exfil_incremental.jsonl",
	})
	if err != nil {
		t.Fatalf("runWatch: %v", err)
	}
	if !strings.Contains(out.String(), "unauthorized_send") {
		t.Errorf("want the violation to surface once the second batch lands, got %q", out.String())
	}
	if strings.Count(out.String(), "unauthorized_send") != 1 {
		t.Errorf("want the violation reported exactly once, got %q", out.String())
	}
}

func TestRunWatch_RaiseUnhandled_BlocksOnIntroducingBatch(t *testing.T) {
	watchRaiseUnhandled = true
	watchReload = false
	watchFollow = false
	defer func() { watchRaiseUnhandled = false }()

	cmd := watchCmd
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	err := runWatch(cmd, []string{
		"../../../testdata/policies/inbox_exfil.tw",
		"../../../testdata/traces/inbox_exfil_incremental.jsonl",
	})
	if err != nil {
		t.Fatalf("runWatch: %v", err)
	}
	if !strings.Contains(out.String(), "BLOCKED unauthorized_send") {
		t.Errorf("want the violation reported as blocked, got %q", out.String())
	}
}

package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunScan_TableFormat_ReportsViolation(t *testing.T) {
	scanFormat = "table"
	cmd := scanCmd
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	err := runScan(cmd, []string{
		"../../../testdata/policies/inbox_exfil.tw",
		"../../../testdata/traces/inbox_exfil_attacker.json",
	})
	if err == nil {
		t.Fatal("want an error reporting the unhandled violation")
	}
	if !strings.Contains(out.String(), "unauthorized_send") {
		t.Errorf("want table output to mention the rule name, got %q", out.String())
	}
}

func TestRunScan_NoViolation_ReturnsNil(t *testing.T) {
	scanFormat = "table"
	cmd := scanCmd
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	err := runScan(cmd, []string{
		"../../../testdata/policies/inbox_exfil.tw",
		"../../../testdata/traces/inbox_exfil_peter.json",
	})
	if err != nil {
		t.Fatalf("want no error when the trace has no violation, got %v", err)
	}
}

func TestRunScan_JSONFormat_EmitsAnalysisResult(t *testing.T) {
	scanFormat = "json"
	defer func() { scanFormat = "table" }()
	cmd := scanCmd
	out := &bytes.Buffer{}
	cmd.SetOut(out)

	err := runScan(cmd, []string{
		"../../../testdata/policies/pii_leak.tw",
		"../../../testdata/traces/pii_leak.json",
	})
	if err == nil {
		t.Fatal("want an error reporting the unhandled violation")
	}
	if !strings.Contains(out.String(), `"pii_leak"`) {
		t.Errorf("want JSON output to contain the violation name, got %q", out.String())
	}
}

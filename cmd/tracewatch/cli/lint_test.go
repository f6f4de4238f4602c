package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestRunLint_ValidPolicy(t *testing.T) {
	out := &bytes.Buffer{}
	lintCmd.SetOut(out)

	if err := runLint(lintCmd, []string{"../../../testdata/policies/inbox_exfil.tw"}); err != nil {
		t.Fatalf("runLint: %v", err)
	}
	if !strings.Contains(out.String(), "ok") {
		t.Errorf("want an ok report, got %q", out.String())
	}
}

func TestRunLint_MissingFile(t *testing.T) {
	if err := runLint(lintCmd, []string{"../../../testdata/policies/does_not_exist.tw"}); err == nil {
		t.Fatal("want an error for a missing policy file")
	}
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tracesec/tracewatch/api"
	"github.com/tracesec/tracewatch/internal/eval"
	"github.com/tracesec/tracewatch/internal/trace"
)

var scanFormat string

var scanCmd = &cobra.Command{
	Use:   "scan <policy.tw> <trace.json>",
	Short: "Evaluate a policy against a complete recorded trace",
	Example: `  tracewatch scan policies/exfil.tw traces/incident-42.json
  tracewatch scan policies/exfil.tw traces/incident-42.json --format json`,
	Args: cobra.ExactArgs(2),
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanFormat, "format", "table", "output format: table or json")
	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading policy: %w", err)
	}
	pol, err := eval.CompilePolicy(string(source))
	if err != nil {
		return fmt.Errorf("compiling policy: %w", err)
	}

	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("reading trace: %w", err)
	}
	events, err := trace.DecodeJSON(data)
	if err != nil {
		return fmt.Errorf("decoding trace: %w", err)
	}
	tr, warnings, err := trace.NewTrace(events, trace.Lax)
	if err != nil {
		return fmt.Errorf("building trace: %w", err)
	}

	res, err := pol.Analyze(context.Background(), tr, nil)
	if err != nil {
		return fmt.Errorf("evaluation error: %w", err)
	}
	res.Warnings = append(warnings, res.Warnings...)

	switch scanFormat {
	case "json":
		return printScanJSON(cmd, res)
	default:
		printScanTable(cmd, res)
	}

	if len(res.Errors) > 0 {
		return fmt.Errorf("%d unhandled violation(s)", len(res.Errors))
	}
	return nil
}

func printScanJSON(cmd *cobra.Command, res *eval.AnalysisResult) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(api.FromAnalysisResult(res))
}

func printScanTable(cmd *cobra.Command, res *eval.AnalysisResult) {
	red, yellow, reset := "", "", ""
	if f, ok := cmd.OutOrStdout().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		red, yellow, reset = "\x1b[31m", "\x1b[33m", "\x1b[0m"
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tMESSAGE\tEVENTS")
	for _, v := range res.Errors {
		fmt.Fprintf(w, "%s%s\t%s\t%s%s\n", red, v.Name, v.Message, rangeIDs(v), reset)
	}
	for _, v := range res.HandledErrors {
		fmt.Fprintf(w, "%s%s (handled)\t%s\t%s%s\n", yellow, v.Name, v.Message, rangeIDs(v), reset)
	}
	w.Flush()

	for _, wr := range res.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s: %s\n", wr.Kind, wr.Message)
	}
}

func rangeIDs(v *eval.PolicyViolation) string {
	s := ""
	for i, r := range v.Ranges {
		if i > 0 {
			s += ","
		}
		s += string(r.ObjectID)
	}
	return s
}

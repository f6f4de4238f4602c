package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracesec/tracewatch/internal/eval"
)

var lintCmd = &cobra.Command{
	Use:   "lint <policy.tw>",
	Short: "Parse and type-check a policy without running it against a trace",
	Long: `Lint reports every syntax and type error a policy source file
contains, without requiring a trace to evaluate it against.`,
	Example: `  tracewatch lint policies/exfil.tw`,
	Args:    cobra.ExactArgs(1),
	RunE:    runLint,
}

func init() {
	rootCmd.AddCommand(lintCmd)
}

func runLint(cmd *cobra.Command, args []string) error {
	source, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading policy: %w", err)
	}

	if _, err := eval.CompilePolicy(string(source)); err != nil {
		fmt.Fprintln(cmd.OutOrStdout(), err)
		return fmt.Errorf("%s: failed to compile", args[0])
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", args[0])
	return nil
}

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tracesec/tracewatch/internal/config"
)

var (
	cfgFile string
	verbose bool
	logger  *slog.Logger
	appCfg  *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "tracewatch",
	Short: "TraceWatch — security policy analysis for AI agent traces",
	Long: `TraceWatch evaluates recorded or streaming AI agent traces against
rule-based security policies, flagging unsafe tool-call sequences,
unsafe dataflows, and content violations such as prompt injection,
leaked secrets, or PII.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		if cfgFile != "" {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			appCfg = cfg
		} else {
			appCfg = config.DefaultConfig()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "policy config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

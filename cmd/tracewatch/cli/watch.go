package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tracesec/tracewatch/internal/eval"
	"github.com/tracesec/tracewatch/internal/monitor"
	"github.com/tracesec/tracewatch/internal/trace"
	"github.com/tracesec/tracewatch/internal/watch"
)

var (
	watchRaiseUnhandled bool
	watchReload         bool
	watchFollow         bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <policy.tw> <trace.jsonl>",
	Short: "Evaluate a policy incrementally as batches of trace events arrive",
	Long: `Watch reads one batch of trace events per line of a JSON Lines file
and runs them through an incremental Monitor, printing only the
violations each new batch introduces. With --follow, it keeps polling
the file for new lines after reaching EOF, the way a live agent session
would be tailed. With --reload, edits to the policy file are picked up
without restarting.`,
	Example: `  tracewatch watch policies/exfil.tw sessions/live.jsonl --follow
  tracewatch watch policies/exfil.tw sessions/live.jsonl --raise-unhandled --reload`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchRaiseUnhandled, "raise-unhandled", false, "treat violations caught in the batch that raised them as blocking")
	watchCmd.Flags().BoolVar(&watchReload, "reload", false, "hot-reload the policy file on change")
	watchCmd.Flags().BoolVar(&watchFollow, "follow", false, "keep polling the trace file for new lines after EOF")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	policyPath, tracePath := args[0], args[1]

	if appCfg != nil && !cmd.Flags().Changed("raise-unhandled") {
		watchRaiseUnhandled = appCfg.RaiseUnhandled
	}

	var mu sync.Mutex
	pol, err := loadPolicy(policyPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if watchReload {
		watchCfg := watch.DefaultConfig()
		if appCfg != nil && appCfg.WatchDebounceMS > 0 {
			watchCfg.DebounceInterval = time.Duration(appCfg.WatchDebounceMS) * time.Millisecond
		}
		w, err := watch.New(policyPath, watchCfg, slog.Default())
		if err != nil {
			return fmt.Errorf("setting up policy watcher: %w", err)
		}
		go func() {
			_ = w.Run(ctx, func() error {
				next, err := loadPolicy(policyPath)
				if err != nil {
					return err
				}
				mu.Lock()
				pol = next
				mu.Unlock()
				return nil
			})
		}()
	}

	mon := monitor.NewMonitor(pol, monitor.Options{RaiseUnhandled: watchRaiseUnhandled})

	f, err := os.Open(tracePath)
	if err != nil {
		return fmt.Errorf("opening trace: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			mu.Lock()
			mon.SwapPolicy(pol)
			mu.Unlock()
			if perr := processBatch(ctx, cmd, mon, line); perr != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), perr)
			}
		}
		if err == io.EOF {
			if !watchFollow {
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(500 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("reading trace: %w", err)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func loadPolicy(path string) (*eval.Policy, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy: %w", err)
	}
	pol, err := eval.CompilePolicy(string(source))
	if err != nil {
		return nil, fmt.Errorf("compiling policy: %w", err)
	}
	return pol, nil
}

func processBatch(ctx context.Context, cmd *cobra.Command, mon *monitor.Monitor, line []byte) error {
	events, err := trace.DecodeJSON(line)
	if err != nil {
		return fmt.Errorf("decoding batch: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	res, err := mon.CheckNext(ctx, events)
	if blocked, ok := err.(*monitor.BlockingViolation); ok {
		for _, v := range blocked.Violations {
			fmt.Fprintf(cmd.OutOrStdout(), "BLOCKED %s: %s\n", v.Name, v.Message)
		}
		return nil
	}
	if err != nil {
		return err
	}

	for _, v := range res.Errors {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", v.Name, v.Message)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.OutOrStdout(), "warning: %s: %s\n", w.Kind, w.Message)
	}
	return nil
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/me/galaxyprobe/internal/config"
	"github.com/me/galaxyprobe/internal/watcher"
)

func newWatchCmd(v *viper.Viper) *cobra.Command {
	var historyID string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a history and run every data table tool across its options",
		Long: `Watch resolves the configured history, waits for its datasets to finish,
and for each tool that produced one runs the tool once per combination of its
data table options, using the observed parameters as the base input.
The command returns when the history is idle and every tool run has finished.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			h, err := a.connect(ctx, historyID)
			if err != nil {
				return err
			}
			run := a.startRun(ctx, h)
			log := logger.With("run_id", run.ID, "history_id", h.ID)
			log.Info("watching history", "name", h.Name)

			sched := watcher.NewScheduler(a.client, a.resolver, a.engine, a.toolRecorder(), watcher.SchedulerConfig{
				RunID:              run.ID,
				HistoryID:          h.ID,
				MaxConcurrentTools: cfg.MaxConcurrentTools,
				Filter:             a.filter,
			}, logger)
			w := watcher.New(a.client, sched, cfg.Watcher(), logger)

			watchErr := w.Watch(ctx, h.ID)
			if watchErr != nil {
				log.Error("watch stopped", "error", watchErr)
			}
			results := sched.Wait()
			a.finishRun(run, watchErr)

			printResults(cmd.OutOrStdout(), run.ID, results)
			if watchErr != nil && !errors.Is(watchErr, context.Canceled) {
				return fmt.Errorf("watch history %s: %w", h.ID, watchErr)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&historyID, "history-id", "", "Watch this history id instead of resolving --history by name")
	f.Duration("watch-interval", config.DefaultProbeConfig().WatchInterval, "Wait between rounds over unresolved datasets")
	f.Int("max-concurrent-tools", 0, "Run at most this many tools at once (0 is unbounded)")
	_ = v.BindPFlag("watch_interval", f.Lookup("watch-interval"))
	_ = v.BindPFlag("max_concurrent_tools", f.Lookup("max-concurrent-tools"))

	return cmd
}

// printResults writes one line per finished tool.
func printResults(w io.Writer, runID string, results []watcher.ToolResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No tools were run.")
		return
	}
	fmt.Fprintf(w, "Run: %s\n\n", runID)
	fmt.Fprintf(w, "%-50s  %-8s  %6s  %4s  %6s  %8s\n", "TOOL", "STATE", "COMBOS", "OK", "FAILED", "REJECTED")
	fmt.Fprintf(w, "%-50s  %-8s  %6s  %4s  %6s  %8s\n", "----", "-----", "------", "--", "------", "--------")
	for _, r := range results {
		fmt.Fprintf(w, "%-50s  %-8s  %6d  %4d  %6d  %8d\n",
			r.ToolID, r.State, r.Combinations, r.Summary.OK, r.Summary.Failed, r.Summary.Rejected)
		if r.Err != nil {
			fmt.Fprintf(w, "  error: %v\n", r.Err)
		} else if r.Reason != "" {
			fmt.Fprintf(w, "  %s\n", r.Reason)
		}
	}
}

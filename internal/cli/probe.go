package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/partial"
	"github.com/me/galaxyprobe/internal/schema"
	"github.com/me/galaxyprobe/internal/tooldef"
	"github.com/me/galaxyprobe/internal/watcher"
)

func newProbeCmd(v *viper.Viper) *cobra.Command {
	var (
		toolID    string
		inputFile string
		historyID string
	)

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Run one tool across its data table options",
		Long: `Probe runs a single tool once per combination of its data table options.
The base input is read from --input when given. Otherwise a minimal state the
service accepts is found by submitting build requests seeded from the tool's
declared defaults.`,
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

			def, err := a.resolver.Resolve(ctx, toolID)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", toolID, err)
			}

			var base map[string]any
			if inputFile != "" {
				if base, err = readInput(inputFile); err != nil {
					return err
				}
			} else {
				tool, err := a.client.ShowTool(ctx, toolID)
				if err != nil {
					return fmt.Errorf("show tool %s: %w", toolID, err)
				}
				b := partial.NewBuilder(a.client, cfg.MaxBuildAttempts, logger)
				if cfg.RetryInterval > 0 {
					b.Backoff = cfg.RetryInterval
				}
				state, err := b.Build(ctx, toolID, h.ID, schema.Candidates(tool.Doc))
				if err != nil {
					return fmt.Errorf("build base state for %s: %w", toolID, err)
				}
				base, _ = state.Value().(map[string]any)
			}

			run := a.startRun(ctx, h)
			sched := watcher.NewScheduler(a.client, resolved{def}, a.engine, a.toolRecorder(), watcher.SchedulerConfig{
				RunID:     run.ID,
				HistoryID: h.ID,
				Filter:    a.filter,
			}, logger)
			sched.Dispatch(ctx, &galaxy.Provenance{ToolID: toolID, Parameters: base})
			results := sched.Wait()

			var runErr error
			for _, r := range results {
				if r.Err != nil {
					runErr = r.Err
				}
			}
			if runErr == nil {
				runErr = ctx.Err()
			}
			a.finishRun(run, runErr)

			printResults(cmd.OutOrStdout(), run.ID, results)
			return runErr
		},
	}

	f := cmd.Flags()
	f.StringVar(&toolID, "tool", "", "Tool id (required)")
	f.StringVar(&inputFile, "input", "", "JSON file holding the base input state")
	f.StringVar(&historyID, "history-id", "", "Run in this history id instead of resolving --history by name")
	f.Int("max-build-attempts", 0, "Stop searching for a base state after this many build calls (0 tries every candidate)")
	_ = v.BindPFlag("max_build_attempts", f.Lookup("max-build-attempts"))
	_ = cmd.MarkFlagRequired("tool")

	return cmd
}

// readInput loads a base input state from a JSON file.
func readInput(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	var input map[string]any
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("parse input %s: %w", path, err)
	}
	return input, nil
}

// resolved serves a definition that was already fetched.
type resolved struct {
	def *tooldef.Definition
}

func (r resolved) Resolve(context.Context, string) (*tooldef.Definition, error) {
	return r.def, nil
}

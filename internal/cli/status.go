package cli

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/me/galaxyprobe/pkg/model"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run_id>",
		Short: "Show a run and its tools from a status server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			ctx := cmd.Context()
			c := statusClient()

			resp, err := c.Get(ctx, "/api/v1/runs/"+url.PathEscape(id), nil)
			if err != nil {
				return fmt.Errorf("get run: %w", err)
			}
			var run model.Run
			if err := json.Unmarshal(resp.Data, &run); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			resp, err = c.Get(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/tools", nil)
			if err != nil {
				return fmt.Errorf("list tools: %w", err)
			}
			var tools []model.ToolRun
			if err := json.Unmarshal(resp.Data, &tools); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Run: %s\n", run.ID)
			fmt.Fprintf(out, "  History:  %s", run.HistoryID)
			if run.HistoryName != "" {
				fmt.Fprintf(out, " (%s)", run.HistoryName)
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  State:    %s", run.State)
			if !run.State.IsTerminal() {
				fmt.Fprint(out, " (in progress)")
			}
			fmt.Fprintln(out)
			fmt.Fprintf(out, "  Created:  %s\n", run.CreatedAt.Format("2006-01-02 15:04:05"))
			if run.CompletedAt != nil {
				fmt.Fprintf(out, "  Completed: %s\n", run.CompletedAt.Format("2006-01-02 15:04:05"))
			}

			if len(tools) == 0 {
				return nil
			}
			var combos, failures, active int
			for _, t := range tools {
				combos += t.Combinations
				failures += t.Failures
				if !t.State.IsTerminal() {
					active++
				}
			}
			fmt.Fprintf(out, "  Tools:    %d total, %d active, %d combinations, %d failed\n", len(tools), active, combos, failures)
			for _, t := range tools {
				fmt.Fprintf(out, "    - %s: %s", t.Name, t.State)
				if t.Combinations > 0 {
					fmt.Fprintf(out, " (%d/%d failed)", t.Failures, t.Combinations)
				}
				if t.Reason != "" {
					fmt.Fprintf(out, " %s", t.Reason)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/me/galaxyprobe/pkg/model"
)

func newRunsCmd() *cobra.Command {
	var (
		state string
		limit int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded runs from a status server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("limit", strconv.Itoa(limit))
			if state != "" {
				q.Set("state", state)
			}
			resp, err := statusClient().Get(cmd.Context(), "/api/v1/runs", q)
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}

			var runs []model.Run
			if err := json.Unmarshal(resp.Data, &runs); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s  %-10s  %-24s  %s\n", "ID", "STATE", "HISTORY", "CREATED")
			fmt.Fprintf(out, "%-40s  %-10s  %-24s  %s\n", "----", "-----", "-------", "-------")
			for _, r := range runs {
				history := r.HistoryName
				if history == "" {
					history = r.HistoryID
				}
				fmt.Fprintf(out, "%-40s  %-10s  %-24s  %s\n", r.ID, r.State, history, r.CreatedAt.Format("2006-01-02 15:04:05"))
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Fprintf(out, "\n(%d of %d shown)\n", len(runs), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Only runs in this state (RUNNING, COMPLETED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to list")

	return cmd
}

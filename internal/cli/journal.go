package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/galaxyprobe/internal/journal"
)

func newJournalCmd() *cobra.Command {
	var (
		toolName string
		raw      bool
	)

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the failed combinations recorded for a tool",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j := journal.New(cfg.JournalDir, logger)
			entries, err := j.Entries(toolName)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if raw {
				data, err := json.MarshalIndent(entries, "", "    ")
				if err != nil {
					return fmt.Errorf("encode journal: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			if len(entries) == 0 {
				fmt.Fprintf(out, "No failures recorded for %q in %s.\n", toolName, j.Dir())
				return nil
			}
			fmt.Fprintf(out, "Journal: %s (%d entries)\n\n", j.Path(toolName), len(entries))
			for _, e := range entries {
				input, err := json.Marshal(e.Input)
				if err != nil {
					return fmt.Errorf("encode journal input: %w", err)
				}
				fmt.Fprintf(out, "%s  %s\n", e.Timestamp, e.ErrorMessage)
				fmt.Fprintf(out, "  %s\n", input)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&toolName, "tool", "", "Tool name as used in the journal file name (required)")
	cmd.Flags().BoolVar(&raw, "json", false, "Print the entries as JSON")
	_ = cmd.MarkFlagRequired("tool")

	return cmd
}

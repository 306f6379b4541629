package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/me/galaxyprobe/internal/combo"
	"github.com/me/galaxyprobe/internal/galaxy"
	"github.com/me/galaxyprobe/internal/schema"
	"github.com/me/galaxyprobe/internal/tooldef"
)

func newCombosCmd() *cobra.Command {
	var (
		toolID    string
		countOnly bool
	)

	cmd := &cobra.Command{
		Use:   "combos",
		Short: "Print a tool's combination matrix without submitting anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := galaxy.NewClient(cfg.Galaxy(), logger)

			catalog := tooldef.NewCatalog()
			if cfg.CatalogPath != "" {
				c, err := tooldef.LoadCatalog(cfg.CatalogPath)
				if err != nil {
					return err
				}
				catalog = c
			}
			filter, err := combo.NewFilter(cfg.Filter)
			if err != nil {
				return err
			}

			def, err := tooldef.NewSourceResolver(client, catalog, logger).Resolve(ctx, toolID)
			if err != nil {
				return fmt.Errorf("resolve %s: %w", toolID, err)
			}
			tool, err := client.ShowTool(ctx, toolID)
			if err != nil {
				return fmt.Errorf("show tool %s: %w", toolID, err)
			}

			opts, multi := schema.MineAll(tool.Doc, def.Params())
			combos, err := filter.Apply(combo.Generate(opts, multi))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if countOnly {
				fmt.Fprintln(out, len(combos))
				return nil
			}
			fmt.Fprintf(out, "Tool: %s\n", tool.DisplayName())
			if len(opts) == 0 {
				fmt.Fprintln(out, "  no options found; the base input runs once")
			}
			for _, p := range opts {
				fmt.Fprintf(out, "  %-30s  %d options\n", p.Name, len(p.Values))
			}
			if len(multi) > 0 {
				fmt.Fprintf(out, "  multiple: %v\n", multi)
			}
			fmt.Fprintf(out, "Combinations: %d of %d\n\n", len(combos), combo.Size(opts, multi))
			for i, c := range combos {
				data, err := json.Marshal(c)
				if err != nil {
					return fmt.Errorf("encode combination %d: %w", i, err)
				}
				fmt.Fprintf(out, "%4d  %s\n", i, data)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&toolID, "tool", "", "Tool id (required)")
	cmd.Flags().BoolVar(&countOnly, "count", false, "Print only the number of combinations")
	_ = cmd.MarkFlagRequired("tool")

	return cmd
}

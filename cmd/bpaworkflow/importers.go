package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/bioplatforms/bpaworkflow/internal/importer"
)

func newImportersCmd(g *globalFlags) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "importers",
		Short: "List the configured importers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(g)
			if err != nil {
				return err
			}
			registry, err := importer.FromConfig(cfg)
			if err != nil {
				return fmt.Errorf("load importers: %w", err)
			}
			infos := registry.Infos()

			out := cmd.OutOrStdout()
			if jsonOut {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}
			if len(infos) == 0 {
				fmt.Fprintln(out, "No importers configured.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SLUG\tPROJECT\tDATA TYPE\tTITLE")
			for _, info := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Name, info.Project, info.DataType, info.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print importers as JSON")
	return cmd
}

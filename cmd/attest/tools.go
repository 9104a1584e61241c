package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/aretw0/attest/pkg/registry"
	"github.com/spf13/cobra"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools offered to the reasoning oracle",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		overrides, _ := cmd.Flags().GetString("overrides")

		reg := registry.Default()
		if overrides != "" {
			var err error
			if reg, err = reg.LoadOverrides(overrides); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(reg.List())
		}

		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TOOL\tTERMINAL\tREQUIRED")
		for _, def := range reg.List() {
			fmt.Fprintf(tw, "%s\t%t\t%v\n", def.Name, def.Terminal, def.Parameters.Required())
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
	toolsCmd.Flags().Bool("json", false, "Print full definitions with JSON Schema parameters")
	toolsCmd.Flags().String("overrides", "", "YAML file of tool description overrides")
}

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ukydev/iotfleet/internal/catalog"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "List the built-in route catalog and behavior profiles",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROUTE\tWAYPOINTS\tLENGTH (km)")
		for _, r := range catalog.Routes() {
			fmt.Fprintf(w, "%s\t%d\t%.2f\n", r.Name, len(r.Waypoints), r.LengthKm())
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "BEHAVIOR\tSPEED x\tSTOP PROB")
		for _, b := range catalog.Behaviors() {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", b.Name, b.SpeedMultiplier, b.StopProbability)
		}
		return w.Flush()
	},
}

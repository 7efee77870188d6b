package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/geo"
)

var hazardsFlags struct {
	all  bool
	bbox string
}

var hazardsCmd = &cobra.Command{
	Use:   "hazards",
	Short: "List hazards with their derived status",
	Args:  cobra.NoArgs,
	RunE:  runHazards,
}

func init() {
	f := hazardsCmd.Flags()
	f.BoolVar(&hazardsFlags.all, "all", false, "Include resolved hazards")
	f.StringVar(&hazardsFlags.bbox, "bbox", "", "Limit to minLng,minLat,maxLng,maxLat")
}

func runHazards(cmd *cobra.Command, _ []string) error {
	var bbox *geo.BBox
	if hazardsFlags.bbox != "" {
		b, err := geo.ParseBBox(hazardsFlags.bbox)
		if err != nil {
			return fmt.Errorf("--bbox: %w", err)
		}
		bbox = &b
	}
	return withQueries(cmd, func(ctx context.Context, q *service.QueryService) error {
		views, err := q.ListHazards(ctx, bbox, hazardsFlags.all)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if globalFlags.json {
			return printJSON(out, views)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tLAT\tLNG\tSEVERITY\tREPORTED")
		for _, v := range views {
			severity := "-"
			if a := v.Hazard.Analysis.Hazard; a != nil && a.Severity != "" {
				severity = a.Severity
			}
			fmt.Fprintf(tw, "%s\t%s\t%.6f\t%.6f\t%s\t%s\n", v.Hazard.ID, v.Status, v.Hazard.Location.Lat,
				v.Hazard.Location.Lng, severity, v.Hazard.Timestamp.Format("2006-01-02 15:04"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		fmt.Fprintf(out, "%d hazard(s)\n", len(views))
		return nil
	})
}

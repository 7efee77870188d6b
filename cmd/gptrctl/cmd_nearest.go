package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
	"github.com/gandretiraghu/gptr-road-safety/internal/models"
)

var nearestFlags struct {
	lat float64
	lng float64
}

var nearestCmd = &cobra.Command{
	Use:   "nearest",
	Short: "Find the closest open hazard to a position",
	Args:  cobra.NoArgs,
	RunE:  runNearest,
}

func init() {
	f := nearestCmd.Flags()
	f.Float64Var(&nearestFlags.lat, "lat", 0, "Latitude (required)")
	f.Float64Var(&nearestFlags.lng, "lng", 0, "Longitude (required)")
	_ = nearestCmd.MarkFlagRequired("lat")
	_ = nearestCmd.MarkFlagRequired("lng")
}

func runNearest(cmd *cobra.Command, _ []string) error {
	return withQueries(cmd, func(ctx context.Context, q *service.QueryService) error {
		res, err := q.NearestHazard(ctx, models.GeoLocation{Lat: nearestFlags.lat, Lng: nearestFlags.lng})
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if globalFlags.json {
			return printJSON(out, res)
		}
		if !res.Found {
			fmt.Fprintln(out, "No open hazard.")
			return nil
		}
		fmt.Fprintf(out, "Hazard:      %s\n", res.Hazard.Hazard.ID)
		fmt.Fprintf(out, "Status:      %s\n", res.Hazard.Status)
		fmt.Fprintf(out, "Distance:    %.1f m\n", res.DistanceMeters)
		fmt.Fprintf(out, "Repair:      %s\n", yesNo(res.RepairUnlocked, "unlocked", "too far"))
		fmt.Fprintf(out, "New hazard:  %s\n", yesNo(res.NewHazardBlocked, "blocked", "allowed"))
		return nil
	})
}

func yesNo(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}

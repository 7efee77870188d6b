package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count hazards per phase",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func runStats(cmd *cobra.Command, _ []string) error {
	return withQueries(cmd, func(ctx context.Context, q *service.QueryService) error {
		st, err := q.Stats(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if globalFlags.json {
			return printJSON(out, st)
		}
		fmt.Fprintf(out, "Active:     %d\n", st.Active)
		fmt.Fprintf(out, "Verifying:  %d\n", st.Verifying)
		fmt.Fprintf(out, "Resolved:   %d\n", st.Resolved)
		fmt.Fprintf(out, "Repairs:    %d (%d unlinked)\n", st.TotalRepairs, st.UnlinkedRepairs)
		return nil
	})
}

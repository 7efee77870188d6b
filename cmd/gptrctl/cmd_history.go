package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gandretiraghu/gptr-road-safety/internal/core/service"
)

var historyCmd = &cobra.Command{
	Use:   "history <hazard-id>",
	Short: "Show a hazard and every repair linked to it",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withQueries(cmd, func(ctx context.Context, q *service.QueryService) error {
		reports, err := q.GetHistory(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if globalFlags.json {
			return printJSON(out, reports)
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "TIME\tKIND\tID\tDEVICE\tVERDICT")
		for _, r := range reports {
			verdict := "-"
			if s := r.Analysis.AuditStatus(); s != "" {
				verdict = string(s)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.Timestamp.Format("2006-01-02 15:04:05"), r.Kind, r.ID, r.DeviceID, verdict)
		}
		return tw.Flush()
	})
}

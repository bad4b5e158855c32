package main

import (
	"context"
	"encoding/json"
	"fmt"

	"jobradar/internal/app"
	"jobradar/internal/monitoring"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print collection metrics and health alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			rep, err := c.Monitor.Report(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if statusJSON {
				b, err := json.MarshalIndent(rep, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(b))
				return nil
			}
			printReport(cmd, rep)
			return nil
		})
	},
}

func printReport(cmd *cobra.Command, rep monitoring.Report) {
	out := cmd.OutOrStdout()
	m := rep.Metrics
	fmt.Fprintf(out, "Jobs (last %dh):         %d\n", m.WindowHours, m.TotalJobs)
	fmt.Fprintf(out, "Company extraction rate: %.1f%%\n", m.CompanyExtractionRate*100)
	fmt.Fprintf(out, "Duplicate rate:          %.1f%%\n", m.DuplicateRate*100)
	fmt.Fprintf(out, "Runs / failed:           %d / %d\n", m.Runs, m.FailedRuns)
	fmt.Fprintf(out, "Pending embeddings:      %d\n", m.PendingEmbeddings)
	fmt.Fprintf(out, "Outstanding batches:     %d\n", m.OutstandingBatches)
	if m.LastCollectedAt != nil {
		fmt.Fprintf(out, "Last collected:          %s\n", m.LastCollectedAt.UTC().Format("2006-01-02 15:04:05"))
	}

	if len(m.JobsBySite) > 0 {
		fmt.Fprintln(out, "\nBy site:")
		for _, s := range m.JobsBySite {
			fmt.Fprintf(out, "  %-15s %d\n", s.Site, s.Count)
		}
	}
	if len(rep.Quota) > 0 {
		fmt.Fprintln(out, "\nQuota today:")
		for _, q := range rep.Quota {
			fmt.Fprintf(out, "  %-15s %d/%d\n", q.Source, q.Used, q.Limit)
		}
	}
	if len(rep.Alerts) > 0 {
		fmt.Fprintln(out, "\nAlerts:")
		for _, a := range rep.Alerts {
			fmt.Fprintf(out, "  [%s] %s\n", a.Severity, a.Message)
		}
	}
	if len(rep.Recommendations) > 0 {
		fmt.Fprintln(out, "\nRecommendations:")
		for _, r := range rep.Recommendations {
			fmt.Fprintf(out, "  - %s\n", r)
		}
	}
	if rep.Partial {
		fmt.Fprintln(out, "\n(some metrics could not be collected)")
	}
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the report as JSON")
}

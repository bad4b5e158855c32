package main

import (
	"context"
	"fmt"

	"jobradar/internal/app"

	"github.com/spf13/cobra"
)

var embedCmd = &cobra.Command{
	Use:   "embed",
	Short: "Manage batch embedding",
}

var embedSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit jobs without embeddings as new batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			sum, err := c.Submitter.Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "batches=%d jobs=%d requests=%d\n", len(sum.Batches), sum.Jobs, sum.Requests)
			return err
		})
	},
}

var embedPollCmd = &cobra.Command{
	Use:   "poll [batch-id]",
	Short: "Poll outstanding batches, or a single batch",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			if len(args) == 1 {
				res, err := c.Poller.PollOne(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "batch=%s outcome=%s processed=%d bad_lines=%d\n", args[0], res.Outcome, res.Processed, res.BadLines)
				return nil
			}
			sum, err := c.Poller.Run(ctx)
			for _, r := range sum.Results {
				fmt.Fprintf(cmd.OutOrStdout(), "batch=%s outcome=%s processed=%d bad_lines=%d\n", r.BatchID, r.Outcome, r.Processed, r.BadLines)
			}
			return err
		})
	},
}

var embedReleaseCmd = &cobra.Command{
	Use:   "release <batch-id>",
	Short: "Requeue the jobs of a failed batch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			n, err := c.Submitter.Release(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "released %d job(s) from batch %s\n", n, args[0])
			return nil
		})
	},
}

func init() {
	embedCmd.AddCommand(embedSubmitCmd)
	embedCmd.AddCommand(embedPollCmd)
	embedCmd.AddCommand(embedReleaseCmd)
}

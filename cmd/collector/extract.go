package main

import (
	"context"
	"fmt"

	"jobradar/internal/app"

	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Fill AI-derived fields for unprocessed jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			sum, err := c.Extractor.Run(ctx)
			fmt.Fprintf(cmd.OutOrStdout(), "processed=%d failed=%d skipped=%d\n", sum.Processed, sum.Failed, sum.Skipped)
			return err
		})
	},
}

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Remove residual duplicate job rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			n, err := c.Dedupe(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d duplicate row(s)\n", n)
			return nil
		})
	},
}

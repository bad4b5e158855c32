package main

import (
	"context"
	"strings"

	"jobradar/internal/app"
	"jobradar/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var runOnStart []string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run every pass on its cron schedule until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			s, err := c.Scheduler()
			if err != nil {
				return err
			}
			if len(s.Names()) == 0 {
				return errors.New("nothing to schedule")
			}
			if err := s.Start(ctx); err != nil {
				return err
			}
			logger.Logger.Infow("scheduler running", "pipeline", "scheduler", "tasks", strings.Join(s.Names(), ","))

			for _, name := range runOnStart {
				go s.RunNow(ctx, name)
			}

			<-ctx.Done()
			s.Stop()
			return nil
		})
	},
}

func init() {
	scheduleCmd.Flags().StringSliceVar(&runOnStart, "run-now", nil, "task names to run once at startup, e.g. collect:morning")
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jobradar/internal/app"
	"jobradar/internal/config"
	"jobradar/internal/logger"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "collector",
	Short: "Collect, normalize and embed job listings",
	Long: `collector runs the job pipeline passes.

Examples:
  collector migrate                      # apply pending SQL migrations
  collector collect --window morning     # run one collection cycle
  collector embed submit                 # submit pending jobs for embedding
  collector embed poll                   # reconcile outstanding batches
  collector embed release <batch-id>     # requeue the jobs of a failed batch
  collector extract                      # fill AI-derived fields
  collector dedupe                       # remove residual duplicate rows
  collector status                       # print the health report
  collector schedule                     # run every pass on its cron schedule`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return errors.Wrap(err, "load config")
		}
		if _, err := logger.Initialize(cfg.App.Environment, cfg.App.LogLevel); err != nil {
			return errors.Wrap(err, "init logger")
		}
		loaded = cfg
		return nil
	},
}

var loaded config.Config

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(embedCmd)
	rootCmd.AddCommand(extractCmd)
	rootCmd.AddCommand(dedupeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// withContainer builds the container for one command and closes it afterwards.
func withContainer(cmd *cobra.Command, fn func(ctx context.Context, c *app.Container) error) error {
	ctx := cmd.Context()
	c, err := app.NewContainer(ctx, loaded, logger.Logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Logger.Warnw("container close failed", "error", err)
		}
	}()
	return fn(ctx, c)
}

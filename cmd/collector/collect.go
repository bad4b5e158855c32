package main

import (
	"context"
	"encoding/json"
	"fmt"

	"jobradar/internal/app"

	"github.com/spf13/cobra"
)

var collectOpts app.CollectOptions

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection cycle",
	Long: `Run one collection cycle across the selected sources.

Sources, focus terms and locations come from the flags, then the named
window in the sources file, then the environment.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			sum, err := c.Collect(ctx, collectOpts)
			b, _ := json.MarshalIndent(sum, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		})
	},
}

func init() {
	f := collectCmd.Flags()
	f.StringVar(&collectOpts.Window, "window", "", "collection window from the sources file")
	f.StringSliceVar(&collectOpts.Sources, "source", nil, "restrict to these sources (repeatable)")
	f.StringSliceVar(&collectOpts.Focus, "focus", nil, "search terms or category names")
	f.StringSliceVar(&collectOpts.Locations, "location", nil, "search locations")
	f.StringVar(&collectOpts.Strategy, "strategy", "", "strategy tag recorded on collected jobs")
}

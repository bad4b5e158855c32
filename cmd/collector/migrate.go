package main

import (
	"context"
	"fmt"
	"time"

	"jobradar/internal/database/migration"
	dbpostgres "jobradar/internal/database/postgres"

	"github.com/spf13/cobra"
)

var migrationsDir string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending SQL migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
		defer cancel()

		db, err := dbpostgres.Connect(ctx, loaded.Database)
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := migration.Runner{Dir: migrationsDir}.Run(ctx, db.SQLDB())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "applied %d migration(s)\n", n)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrationsDir, "dir", "migrations", "directory holding V{n}__name.sql files")
}

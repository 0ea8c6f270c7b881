package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/jobs"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/postgres"
)

var migrateSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or roll back database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations, including the job queue schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Postgres.URL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		if err := postgres.MigrateUp(cfg.Postgres.URL); err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := jobs.Migrate(ctx, pool); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
		return nil
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back the given number of migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if migrateSteps <= 0 {
			return errors.New("--steps must be positive")
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Postgres.URL == "" {
			return errors.New("DATABASE_URL is not set")
		}
		if err := postgres.MigrateDown(cfg.Postgres.URL, migrateSteps); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rolled back %d migration(s)\n", migrateSteps)
		return nil
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "number of migrations to roll back")
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
}

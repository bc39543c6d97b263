package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"cognitive_backend/core"
	"cognitive_backend/db"
)

func newMigrateCmd() *cobra.Command {
	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the telemetry database schema",
		Long: `migrate applies or rolls back schema migrations on DB_PATH. serve applies
pending migrations on start; these commands are for explicit upgrades and
rollbacks. MIGRATIONS_PATH (a file:// URL) overrides the built-in migrations.`,
	}

	migrate.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply every pending migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			if err := db.MigrateUp(cfg.DBPath, cfg.MigrationsPath); err != nil {
				return err
			}
			return printMigrationStatus(cmd, cfg)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			if steps < 0 {
				return core.ErrInvalidValue("--steps", "must be 0 (all) or positive")
			}
			if err := db.MigrateDown(cfg.DBPath, cfg.MigrationsPath, steps); err != nil {
				return err
			}
			return printMigrationStatus(cmd, cfg)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back; 0 rolls back all")
	migrate.AddCommand(down)

	migrate.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			return printMigrationStatus(cmd, cfg)
		},
	})
	return migrate
}

func printMigrationStatus(cmd *cobra.Command, cfg *core.Config) error {
	status, err := db.GetMigrationStatus(cfg.DBPath, cfg.MigrationsPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "database=%s version=%d dirty=%t\n", cfg.DBPath, status.Version, status.Dirty)
	return nil
}

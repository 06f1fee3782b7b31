package main

import (
	"fmt"

	"github.com/kursadbilgin/group-enroller/internal/config"
	"github.com/kursadbilgin/group-enroller/internal/infra/database"
	"github.com/kursadbilgin/group-enroller/internal/infra/database/migrations"
	"github.com/spf13/cobra"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations for the sqlite or postgres store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.StoreBackend == config.StoreBackendFile {
				fmt.Fprintln(cmd.OutOrStdout(), "file store needs no migrations")
				return nil
			}

			db, err := database.Open(cfg.StoreBackend, cfg.DatabaseDSN)
			if err != nil {
				return fmt.Errorf("%s initialization failed: %w", cfg.StoreBackend, err)
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			if err := migrations.Migrate(db); err != nil {
				return fmt.Errorf("database migrations failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

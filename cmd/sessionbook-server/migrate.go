package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sessionbook/backend/internal/store/postgres"
	"sessionbook/backend/migrations"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}
			db, err := openDB(cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := postgres.Close(db); err != nil {
					log.Warn("database close failed", slog.Any("err", err))
				}
			}()

			ran, err := postgres.MigrateDB(cmd.Context(), db, migrations.FS)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if len(ran) == 0 {
				log.Info("database is up to date")
				return nil
			}
			log.Info("migrations applied", slog.Any("files", ran))
			return nil
		},
	}
}

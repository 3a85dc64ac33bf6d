package main

import (
	"errors"

	"github.com/iago/assessment-dispatch/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database tables used for artifact records",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, done, err := bootstrap()
		if err != nil {
			return err
		}
		defer done()

		if cfg.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required to migrate")
		}

		zap.S().Info("Initializing data store")
		store, err := repository.NewPostgresStore(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Migrate(cmd.Context()); err != nil {
			return err
		}
		zap.S().Info("Database migrated")
		return nil
	},
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-procurement-agent/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup()
		if err != nil {
			return err
		}
		defer flush()

		if err := cfg.RequireDatabase(); err != nil {
			return err
		}
		repo, err := database.ConnectDB(cmd.Context(), cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer repo.Close()

		if err := repo.Migrate(cmd.Context()); err != nil {
			return err
		}
		zap.S().Info("✅ Schema is up to date")
		return nil
	},
}

package main

import (
	"github.com/spf13/cobra"

	"github.com/multiplier-synth/multiplier-api/internal/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create any missing tables and indexes",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.Open(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(cmd.Context()); err != nil {
		return err
	}
	log.Info("Schema bootstrapped", "db", cfg.Describe())
	return nil
}

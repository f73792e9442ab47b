package main

import (
	"github.com/spf13/cobra"

	appLog "focuscal/internal/log"
	"focuscal/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := loadConfig(); err != nil {
			return err
		}
		db, err := store.Connect(cfg.Database)
		if err != nil {
			return err
		}
		defer store.Close(db)

		if err := store.Migrate(db); err != nil {
			return err
		}
		appLog.Info("database migrated", "backend", cfg.Database.Backend)
		return nil
	},
}

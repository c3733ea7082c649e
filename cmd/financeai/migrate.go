package main

import (
	"github.com/spf13/cobra"

	"github.com/ent0n29/financeai/internal/app"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the Postgres schema",
		Long: `Create every table the service uses in the database named by DATABASE_URL.
Statements are idempotent, so running migrate against an existing schema is safe.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := app.Migrate(cmd.Context(), cfg.DatabaseURL); err != nil {
				return err
			}
			logger.Info("schema up to date")
			return nil
		},
	}
}

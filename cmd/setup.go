package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newSetupCmd creates the 'setup' subcommand: idempotent schema provisioning.
func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Provisions the main and staging tables",
		Long: `Creates the permanent and staging tables if they do not exist.
Safe to run repeatedly; existing tables and data are untouched.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfigAndLogger()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			if cfg.DB.DSN == "" {
				return fmt.Errorf("db.dsn must be set for setup")
			}

			warehouse, err := buildWarehouse(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer warehouse.Close()

			if err := warehouse.EnsureSchema(cmd.Context()); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
			logger.Info("schema ready",
				zap.String("main_table", cfg.DB.MainTable),
				zap.String("staging_table", cfg.DB.StagingTable),
			)
			return nil
		},
	}
}

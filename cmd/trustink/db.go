package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stake-plus/trustink/src/auth"
	"github.com/stake-plus/trustink/src/config"
	"github.com/stake-plus/trustink/src/data"
	"github.com/stake-plus/trustink/src/trust"
	"go.uber.org/zap"
)

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := data.Open(cfg.Database)
			if err != nil {
				return err
			}
			if err := data.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			logger.Info("Database migrated", zap.String("driver", cfg.Database.Driver))
			return nil
		},
	}
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create demo admin, reviewer and creator accounts on an empty database",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.FromContext(cmd.Context())
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := data.Open(cfg.Database)
			if err != nil {
				return err
			}
			if err := data.Migrate(db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			svc := auth.NewService(db, cfg.Auth, trust.NewEngine(db, cfg.Trust, logger), logger)
			n, err := svc.Seed(cmd.Context(), auth.DemoAccounts)
			if err != nil {
				return err
			}
			logger.Info("Seed complete", zap.Int("created", n))
			return nil
		},
	}
}

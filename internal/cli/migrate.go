package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"live-survey-service/internal/config"
	"live-survey-service/internal/infra/postgres"
	"live-survey-service/internal/logger"
)

// NewMigrateCmd applies the postgres migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()
	return postgres.Migrate(ctx, cfg.Postgres.URL, log)
}

package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"live-survey-service/internal/config"
	"live-survey-service/internal/logger"
)

// NewAdminCmd groups admin directory maintenance.
func NewAdminCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage the admin directory",
	}
	cmd.AddCommand(newBootstrapCmd(configPath))
	return cmd
}

func newBootstrapCmd(configPath *string) *cobra.Command {
	var email, name string
	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Seed the first superadmin",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return bootstrapAdmin(cmd.Context(), cfg, email, name, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "superadmin email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func bootstrapAdmin(ctx context.Context, cfg config.Config, email, name string, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return err
	}
	defer log.Sync()
	if cfg.Store.Backend == config.BackendMemory {
		log.Warn("bootstrapping into the memory store; the entry is lost on exit")
	}

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	created, err := newServices(cfg, store, log).Admins.Bootstrap(ctx, email, name)
	if err != nil {
		log.Error("bootstrap failed", zap.Error(err))
		return err
	}
	if created {
		fmt.Fprintf(out, "superadmin %s created\n", email)
	} else {
		fmt.Fprintf(out, "admin entry for %s already exists, left unchanged\n", email)
	}
	return nil
}

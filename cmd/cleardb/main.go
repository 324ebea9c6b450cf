package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"invigilens/internal/alerts"
	"invigilens/internal/bootstrap"
	"invigilens/internal/config"
	"invigilens/internal/logging"
)

func main() {
	if err := command().Execute(); err != nil {
		os.Exit(1)
	}
}

func command() *cobra.Command {
	var (
		backend    string
		sqlitePath string
	)
	cmd := &cobra.Command{
		Use:          "cleardb",
		Short:        "Delete every alert from the store. Evidence files are kept.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if backend != "" {
				cfg.StoreBackend = backend
			}
			if sqlitePath != "" {
				cfg.SQLitePath = sqlitePath
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := logging.New(cfg.LogLevel, cfg.LogFormat)
			return clearAlerts(cmd.Context(), cmd, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&backend, "store", "", "store backend (postgres, sqlite), overrides STORE_BACKEND")
	cmd.Flags().StringVar(&sqlitePath, "sqlite-path", "", "sqlite file, overrides SQLITE_PATH")
	return cmd
}

func clearAlerts(ctx context.Context, cmd *cobra.Command, cfg config.App, logger *slog.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	st, closeStore, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	q, rdb := bootstrap.OpenQueue(cfg, logger)
	defer rdb.Close()

	n, err := alerts.NewService(st, q, nil, logger).DeleteAll(ctx)
	if err != nil {
		return fmt.Errorf("delete alerts: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d alerts.\n", n)
	return nil
}

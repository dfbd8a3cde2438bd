package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/phrazzld/curation-engine/internal/config"
	"github.com/phrazzld/curation-engine/internal/platform/logger"
	"github.com/phrazzld/curation-engine/internal/platform/postgres"
	"github.com/phrazzld/curation-engine/internal/service/auth"
	"github.com/phrazzld/curation-engine/internal/task"
)

type rootOptions struct {
	configFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "curation-engine",
		Short:         "Task orchestration for scanner, import and curation workers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "",
		"path to a YAML config file (default ./config.yaml when present)")

	cmd.AddCommand(
		newServeCmd(opts),
		newMigrateCmd(opts),
		newPurgeCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

// loadConfig loads configuration and installs the configured logger.
func (o *rootOptions) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadFile(o.configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	l, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}
	l.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"store", cfg.Database.Driver,
		"broker", cfg.Broker.Driver,
		"uploads", cfg.Uploads.Driver)
	return cfg, l, nil
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the dispatchers and the administration API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := opts.loadConfig()
			if err != nil {
				return err
			}

			undo, err := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
				l.Debug(fmt.Sprintf(format, args...))
			}))
			if err != nil {
				l.Warn("failed to set GOMAXPROCS", "error", err)
			}
			defer undo()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := newApplication(ctx, cfg, l)
			if err != nil {
				return err
			}
			return app.Run(ctx)
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <command> [args...]",
		Short: "Run task store migrations (up, down, status, version, redo, reset)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != "postgres" {
				return fmt.Errorf("migrations need the postgres store, configured store is %q", cfg.Database.Driver)
			}

			db, err := openDatabase(cmd.Context(), cfg.Database, l)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()

			return postgres.Migrate(cmd.Context(), db, l, args[0], args[1:]...)
		},
	}
}

func newPurgeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every WAITING and STOPPED task with its configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, l, err := opts.loadConfig()
			if err != nil {
				return err
			}
			store, db, err := openTaskStore(cmd.Context(), cfg.Database, l)
			if err != nil {
				return err
			}
			if db != nil {
				defer func() { _ = db.Close() }()
			}
			uploads, client, err := openUploadStore(cmd.Context(), cfg.Uploads, l)
			if err != nil {
				return err
			}
			if client != nil {
				defer func() { _ = client.Close() }()
			}
			return purge(cmd.Context(), cmd, store, uploads, l)
		},
	}
}

func purge(ctx context.Context, cmd *cobra.Command, store task.TaskStore, uploads task.UploadStore, l *slog.Logger) error {
	for _, kind := range task.Kinds() {
		n, err := task.NewQueue(kind, store, uploads, l).Purge(ctx)
		if err != nil {
			return fmt.Errorf("failed to purge %s tasks: %w", kind, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: purged %d tasks\n", kind, n)
	}
	return nil
}

func newTokenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API token for an operator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return issueToken(cmd, cfg.Auth, args[0])
		},
	}
}

func issueToken(cmd *cobra.Command, cfg config.AuthConfig, subject string) error {
	svc, err := auth.NewJWTService(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	token, err := svc.GenerateToken(cmd.Context(), subject)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

// cmd/backup/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/semmidev/pgsentry/internal/app"
	"github.com/semmidev/pgsentry/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		envFile    string
		now        bool
	)

	cmd := &cobra.Command{
		Use:   "pgsentry",
		Short: "Scheduled, encrypted and verified PostgreSQL backups",
		Long: `pgsentry dumps every database on a PostgreSQL server, compresses the dump
with zstd, encrypts it with age and uploads it to object storage, where the
stored SHA-256 checksum is read back and compared before the run counts.

Settings come from environment variables (optionally loaded from a .env file)
and an optional YAML file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, envFile, now)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "path to .env file, ignored when missing")
	cmd.Flags().BoolVar(&now, "now", false, "run one backup batch immediately and exit")

	return cmd
}

func run(ctx context.Context, configPath, envFile string, once bool) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize app: %w", err)
	}
	defer application.Shutdown()

	return application.Run(ctx, once)
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fatture/internal/backend"
	"fatture/internal/cli"
	"fatture/internal/config"
	"fatture/internal/log"
	"fatture/internal/services"
)

var rootCmd = &cobra.Command{
	Use:   "fatturectl",
	Short: "Maintenance commands for the fatture ledger",
	Long: `fatturectl works directly on the configured store: it exports data,
rebuilds derived totals, applies SQLite migrations and mirrors the store into
Google Sheets.

Configuration is read from the environment and an optional .env file, the
same way the server reads it.`,
	SilenceUsage: true,
}

func Execute() {
	ctx, stop := cli.SignalContext()
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// env is what every command needs: configuration, a logger and the opened
// primary store.
type env struct {
	cfg     *config.Config
	logger  *log.Logger
	backend *backend.BackendResult
}

func (e *env) Close() error { return e.backend.Close() }

func openEnv(ctx context.Context) (*env, error) {
	if err := cli.LoadEnvFile(); err != nil {
		return nil, err
	}
	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		return nil, err
	}
	logger := cli.SetupLogger(cfg.LogLevel)
	be, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.DataBackend, err)
	}
	return &env{cfg: cfg, logger: logger, backend: be}, nil
}

func (e *env) ledger(ctx context.Context) (*services.Ledger, error) {
	l := services.NewLedger(e.backend.Gateway, services.LedgerOptions{Logger: e.logger})
	if err := l.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

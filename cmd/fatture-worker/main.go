package main

import (
	"context"
	"os"

	"fatture/internal/backend"
	"fatture/internal/cli"
	"fatture/internal/config"
	"fatture/internal/log"
	"fatture/internal/services"
	"fatture/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting fatture-worker")

	ctx, stop := cli.SignalContext()
	defer stop()

	be, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer be.Close()

	ledger := services.NewLedger(be.Gateway, services.LedgerOptions{Logger: logger})
	if err := ledger.Bootstrap(ctx); err != nil {
		logger.Error("Failed to load ledger", log.FieldError, err.Error())
		os.Exit(1)
	}

	var consumer worker.Consumer
	client, err := cli.OpenAMQP(cfg, logger)
	switch {
	case err != nil:
		logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
		os.Exit(1)
	case client != nil:
		defer client.Close()
		consumer = client
	default:
		logger.Info("AMQP disabled, reconciling periodically only", "interval", cfg.ReconcileInterval)
	}

	if mirror := openMirror(ctx, cfg, be, logger); mirror != nil {
		if err := mirror.Start(ctx); err != nil {
			logger.Error("Failed to start mirror", log.FieldError, err.Error())
		} else {
			defer func() {
				_ = cli.Shutdown(cfg.ShutdownTimeout, mirror.Stop)
			}()
		}
	}

	w := worker.NewBalanceWorker(ledger, cfg.ReconcileInterval, logger)
	if err := w.Run(ctx, consumer); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	handled, reconciled := w.Stats()
	logger.Info("Worker stopped gracefully", "handled", handled, "reconciled", reconciled)
}

// openMirror copies the primary store into the configured spreadsheet when
// the spreadsheet is not itself the primary store.
func openMirror(ctx context.Context, cfg *config.Config, primary *backend.BackendResult, logger *log.Logger) *services.MirrorProcessor {
	if cfg.GoogleSpreadsheetID == "" || cfg.DataBackend == string(backend.SheetsBackend) {
		return nil
	}
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Warn("Mirror disabled", log.FieldError, err.Error())
		return nil
	}
	bc.Type = backend.SheetsBackend
	dst, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Warn("Mirror disabled", log.FieldError, err.Error())
		return nil
	}
	mc := services.DefaultMirrorConfig()
	if cfg.MirrorInterval > 0 {
		mc.PollInterval = cfg.MirrorInterval
	}
	logger.Info("Mirroring to Google Sheets", "spreadsheet_id", cfg.GoogleSpreadsheetID, "interval", mc.PollInterval)
	return services.NewMirrorProcessor(primary.Gateway, dst.Gateway, mc, logger)
}

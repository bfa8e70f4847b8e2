package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fatture/internal/cli"
	"fatture/internal/export"
	apphttp "fatture/internal/http"
	"fatture/internal/lifecycle"
	"fatture/internal/log"
	"fatture/internal/middleware/ratelimit"
	"fatture/internal/services"
	"fatture/web"
)

func main() {
	cfg, logger := cli.Bootstrap()

	ctx, stop := cli.SignalContext()
	defer stop()

	be, err := cli.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer be.Close()

	events := lifecycle.NewBus("document")
	opts := services.LedgerOptions{
		Events: events,
		Logger: logger,
	}

	// Change events are optional; without a broker the worker falls back to
	// periodic reconciliation.
	broker, err := cli.OpenAMQP(cfg, logger)
	if err != nil {
		logger.Warn("AMQP unavailable, change events disabled", log.FieldError, err.Error())
	} else if broker != nil {
		defer broker.Close()
		opts.Changes = broker
	}

	ledger := services.NewLedger(be.Gateway, opts)
	if err := ledger.Bootstrap(ctx); err != nil {
		logger.Error("Failed to load ledger", log.FieldError, err.Error())
		os.Exit(1)
	}

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerSecond = cfg.RateLimitPerSecond
	rl.Burst = cfg.RateLimitBurst

	var printer export.PDFRenderer
	if cfg.PDFPrinter == "chrome" {
		chrome := export.NewChromePDF(export.ChromeConfig{
			RemoteURL: cfg.ChromeURL,
			Timeout:   cfg.PDFTimeout,
			NoSandbox: cfg.ChromeNoSandbox,
			Logger:    logger,
		})
		defer chrome.Close()
		printer = chrome
	}

	srv, err := apphttp.NewServer(apphttp.Options{
		Addr:            ":" + cfg.Port,
		Ledger:          ledger,
		Events:          events,
		Backend:         be,
		Logger:          logger,
		Templates:       web.TemplatesFS,
		Static:          web.StaticFS,
		PDF:             printer,
		RefreshInterval: cfg.ExpenseRefreshInterval,
		SessionTTL:      cfg.SessionTTL,
		SessionCapacity: cfg.SessionCapacity,
		RateLimit:       rl,
	})
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err.Error())
		os.Exit(1)
	}

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	if printer != nil {
		// a PDF download waits for the print
		srv.WriteTimeout += cfg.PDFTimeout
	}
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting fatture server", "port", cfg.Port, "backend", cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
			os.Exit(1)
		}
	}

	if err := cli.Shutdown(cfg.ShutdownTimeout, func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	}); err != nil {
		logger.Error("Server shutdown error", log.FieldError, err.Error())
	}
	logger.Info("Server stopped gracefully")
}

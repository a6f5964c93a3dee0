package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"

	"CryptoNewsAnalyzer/internal/app"
	"CryptoNewsAnalyzer/internal/config"
	"CryptoNewsAnalyzer/internal/logging"
	"CryptoNewsAnalyzer/internal/usecase"
)

type options struct {
	Config string `long:"config" description:"Path to a YAML configuration file (overrides CRYPTO_ANALYZER_CONFIG)"`
	Force  bool   `long:"force" description:"Run even when fewer posts than the threshold are available"`
	Test   bool   `long:"test" description:"Check database, Grok and Telegram connectivity and exit"`
	Report bool   `long:"report" description:"Print the operator report as JSON and exit"`
	Prune  bool   `long:"prune" description:"Delete classification records past retention and exit"`
	Daemon bool   `long:"daemon" description:"Run on the scheduler interval and serve /health, /report and /metrics"`
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("cannot load .env: %v", err)
	}

	var opts options
	if _, err := flags.NewParser(&opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(2)
	}

	cfg := config.Load()
	if opts.Config != "" {
		var err error
		if cfg, err = config.LoadFile(opts.Config); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, opts, cfg, logger)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, opts options, cfg config.Config, logger *slog.Logger) int {
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return 1
	}
	defer func() {
		if err := application.Close(); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}()

	switch {
	case opts.Test:
		failed := false
		for _, check := range application.TestConnections(ctx) {
			status := "ok"
			if !check.OK {
				status = "FAILED"
				failed = true
			}
			fmt.Printf("%-10s %s\n", check.Name, status)
		}
		if failed {
			return 1
		}
		return 0

	case opts.Report:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(application.Report(ctx)); err != nil {
			logger.Error("cannot encode report", "error", err)
			return 1
		}
		return 0

	case opts.Prune:
		deleted, err := application.Prune(ctx)
		if err != nil {
			logger.Error("prune failed", "error", err)
			return 1
		}
		fmt.Printf("deleted %d classification records\n", deleted)
		return 0

	case opts.Daemon:
		if err := application.Serve(ctx); err != nil {
			logger.Error("daemon stopped with error", "error", err)
			return 1
		}
		return 0
	}

	report, err := application.Run(ctx, opts.Force)
	if err != nil || report.Status == usecase.StatusFailed {
		return 1
	}
	return 0
}

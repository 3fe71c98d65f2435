package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"dividi/internal/cli"
	"dividi/internal/config"
	applog "dividi/internal/log"
	"dividi/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger("info", applog.ComponentWorker)
	cfg := cli.LoadAndValidateConfig(boot.Logger)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentWorker)

	logger.Info("Starting dividi-worker")

	ctx, stop := cli.SignalContext()
	err := run(ctx, logger, cfg)
	stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}

func run(ctx context.Context, logger *applog.Logger, cfg *config.Config) error {
	if cfg.AMQPURL == "" {
		return errors.New("AMQP_URL is required for the worker")
	}
	// The server writes the same rows; a local cache would serve stale revisions.
	cfg.CacheSize = 0

	res := cli.InitBackend(ctx, logger.Logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	if res.Activity == nil {
		return fmt.Errorf("backend %s keeps no activity log, use sqlite", cfg.DataBackend)
	}
	if res.Publisher == nil {
		return errors.New("AMQP broker unavailable")
	}

	w := worker.NewActivityWorker(res.Store, res.Activity)
	return res.Publisher.ConsumeGroupChanged(ctx, w.HandleGroupChanged)
}

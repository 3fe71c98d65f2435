package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"golang.org/x/sync/errgroup"

	"dividi/internal/cli"
	"dividi/internal/config"
	apphttp "dividi/internal/http"
	applog "dividi/internal/log"
	"dividi/internal/services"
)

func main() {
	cli.LoadEnvFile()

	boot := cli.SetupLogger("info", applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(boot.Logger)
	logger := cli.SetupLogger(cfg.LogLevel, applog.ComponentApp)

	ctx, stop := cli.SignalContext()
	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		stop()
		os.Exit(1)
	}
	stop()
	logger.Info("Server stopped gracefully")
}

func run(ctx context.Context, logger *applog.Logger, cfg *config.Config) error {
	res := cli.InitBackend(ctx, logger.Logger, cfg)
	defer func() {
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	opts := []services.Option{services.WithDefaultRoster(cfg.DefaultRoster)}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	if res.Activity != nil {
		opts = append(opts, services.WithActivityLister(res.Activity))
	}
	svc := services.NewGroupService(res.Store, opts...)

	readyChecks := make(map[string]apphttp.ReadyCheck, len(res.ReadyChecks))
	for name, check := range res.ReadyChecks {
		readyChecks[name] = check
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, svc, apphttp.Options{
		PublicBaseURL:      cfg.PublicBaseURL,
		AllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		TrustedProxies:     cfg.TrustedProxies,
		ReadyChecks:        readyChecks,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting dividi server", "port", cfg.Port, "backend", cfg.DataBackend,
			"cache", cfg.CacheEnabled(), "notifications", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server")

		shutdownCtx, cancel := cli.ShutdownContext(gctx, cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"monee/internal/assistant"
	"monee/internal/cache"
	"monee/internal/cli"
	"monee/internal/config"
	apphttp "monee/internal/http"
	applog "monee/internal/log"
	"monee/internal/metrics"
	"monee/internal/middleware/ratelimit"
	"monee/internal/middleware/security"
	"monee/internal/prefs"
	"monee/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, logger := cli.Bootstrap()
	if err := run(cfg, logger); err != nil {
		logger.Error("Server error", applog.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	res := cli.InitBackend(ctx, logger, cfg)
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", applog.FieldError, err)
		}
	}()

	m := metrics.New()
	reports := cache.NewReports()
	sinks := []store.EventSink{m, reports}
	if res.Publisher != nil {
		sinks = append(sinks, res.Publisher)
	}
	records := store.New(ctx, res.Backend.Records,
		store.WithSinks(sinks...),
		store.WithLogger(logger.WithComponent(applog.ComponentStore)))

	acfg := assistant.DefaultConfig()
	acfg.Model = cfg.AssistantModel
	acfg.Endpoint = cfg.AssistantEndpoint
	acfg.Timeout = cfg.AssistantTimeout

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Store:     records,
		Prefs:     prefs.New(res.Backend.KV, logger),
		Assistant: assistant.NewGateway(acfg, logger),
		Metrics:   m,
		Reports:   reports,
		Limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		Detector:  security.NewDetector(logger),
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting monee server",
			applog.FieldOperation, applog.OpStartup,
			"port", cfg.Port,
			applog.FieldBackend, cfg.DataBackend,
			"events", res.Publisher != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received", applog.FieldOperation, applog.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"monee/internal/amqp"
	"monee/internal/cli"
	"monee/internal/config"
	applog "monee/internal/log"
	"monee/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting monee-worker", applog.FieldOperation, applog.OpStartup)

	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *applog.Logger) error {
	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
	if err != nil {
		return err
	}
	defer client.Close()

	w := worker.NewAuditWorker(logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.Consume(gctx, w.HandleEvent)
	})
	g.Go(func() error {
		return w.PeriodicSummary(gctx, cfg.AuditSummaryInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Worker stopped gracefully", "events", w.Counts())
	return nil
}

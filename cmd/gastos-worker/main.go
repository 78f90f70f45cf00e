package main

import (
	"context"
	"errors"
	"flag"
	"time"

	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	"gastos/internal/cli"
	"gastos/internal/config"
	applog "gastos/internal/log"
	"gastos/internal/services"
	"gastos/internal/worker"
)

func main() {
	refreshInterval := flag.Duration("refresh-interval", 15*time.Minute, "poll the cache and refresh before it expires (0 disables)")
	flag.Parse()

	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Fatal(applog.New(applog.DefaultConfig()), "Configuration validation failed", err)
	}
	base := cli.SetupLogger(cfg.LogLevel)
	logger := base.WithComponent(applog.ComponentWorker)
	logger.Info("Starting gastos-worker")

	if !cfg.AMQPEnabled() {
		cli.Fatal(logger, "AMQP is required by the worker", errors.New("AMQP_URL is not set"))
	}
	if cfg.CacheBackend == config.CacheMemory || cfg.CacheBackend == config.CacheNone {
		logger.Warn("Cache backend is not shared with the server; refreshes only reach this process",
			"cache_backend", cfg.CacheBackend)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		cli.Fatal(logger, "Failed to connect to AMQP", err)
	}
	defer client.Close()

	ds, err := cli.BuildDataset(ctx, cfg, base, services.WithNotifier(client))
	if err != nil {
		cli.Fatal(logger, "Failed to create dataset backend", err)
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Warn("Closing backend failed", applog.FieldError, err)
		}
	}()

	w := worker.NewRefreshWorker(ds.Service)
	if err := w.StartupCheck(ctx); err != nil {
		logger.Warn("Startup refresh failed", applog.FieldError, err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Consuming refresh requests",
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue)
		return client.ConsumeRefreshRequests(gctx, w.HandleRefreshMessage)
	})

	if *refreshInterval > 0 {
		scheduler := services.NewRefreshScheduler(ds.Service, services.RefreshSchedulerConfig{
			PollInterval:  *refreshInterval,
			RefreshBefore: *refreshInterval,
		})
		if err := scheduler.Start(gctx); err != nil {
			cli.Fatal(logger, "Failed to start refresh scheduler", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer stopCancel()
			return scheduler.Stop(stopCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", applog.FieldError, err)
		return
	}
	logger.Info("Worker stopped")
}

package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gastos/internal/amqp"
	"gastos/internal/cli"
	apphttp "gastos/internal/http"
	applog "gastos/internal/log"
	"gastos/internal/services"
)

func serveCmd() *cobra.Command {
	var (
		refreshInterval time.Duration
		warm            bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and the JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), refreshInterval, warm)
		},
	}
	cmd.Flags().DurationVar(&refreshInterval, "refresh-interval", 0, "poll the cache and refresh before it expires (0 disables)")
	cmd.Flags().BoolVar(&warm, "warm", true, "load the dataset before accepting requests")
	return cmd
}

func runServe(ctx context.Context, refreshInterval time.Duration, warm bool) error {
	var (
		client      *amqp.Client
		datasetOpts []services.Option
		serverOpts  = []apphttp.ServerOption{apphttp.WithLogger(logger)}
	)

	if cfg.AMQPEnabled() {
		var err error
		client, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return err
		}
		defer client.Close()
		datasetOpts = append(datasetOpts, services.WithNotifier(client))
		serverOpts = append(serverOpts, apphttp.WithRefreshPublisher(client))
		logger.Info("AMQP enabled, refreshes are queued for the worker",
			"exchange", cfg.AMQPExchange,
			"queue", cfg.AMQPQueue)
	}

	ds, err := cli.BuildDataset(ctx, cfg, logger, datasetOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := ds.Close(); err != nil {
			logger.Warn("Closing backend failed", applog.FieldError, err)
		}
	}()

	if repo := ds.Backend.Repository; repo != nil {
		serverOpts = append(serverOpts, apphttp.WithHealthCheck("sqlite", repo.Ping))
	}

	if warm {
		if _, err := ds.Service.Load(ctx); err != nil {
			logger.Warn("Initial dataset load failed", applog.FieldError, err)
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, ds.Service, serverOpts...)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = cfg.FetchTimeout + 10*time.Second
	srv.IdleTimeout = 60 * time.Second

	g, gctx := errgroup.WithContext(ctx)

	if refreshInterval > 0 {
		scheduler := services.NewRefreshScheduler(ds.Service, services.RefreshSchedulerConfig{
			PollInterval:  refreshInterval,
			RefreshBefore: refreshInterval,
		})
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return scheduler.Stop(stopCtx)
		})
	}

	if client != nil {
		g.Go(func() error {
			err := client.ConsumeDatasetRefreshed(gctx, func(ctx context.Context, msg *amqp.DatasetRefreshedMessage) error {
				_, err := srv.DatasetRefreshed(ctx, msg.RefreshedAt)
				return err
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				// The dashboard keeps serving; it reloads on TTL instead.
				logger.Warn("Dataset refreshed events unavailable", applog.FieldError, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting server",
			"addr", srv.Addr,
			"data_backend", cfg.DataBackend,
			"cache_backend", cfg.CacheBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", applog.FieldError, err)
			return err
		}
		logger.Info("Server stopped")
		return nil
	})

	return g.Wait()
}

// Package cli holds the start-up wiring shared by cmd/gastos and
// cmd/gastos-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"gastos/internal/backend"
	"gastos/internal/cache"
	"gastos/internal/config"
	applog "gastos/internal/log"
	"gastos/internal/services"
	"gastos/internal/sheets"
)

// SetupLogger builds the text logger for level and installs it as the
// slog default.
func SetupLogger(level string) *applog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Level = applog.ParseLevel(level)
	cfg.Handler = nil
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads .env for local development. A missing file is fine.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig reads the environment and validates it.
func LoadAndValidateConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Dataset is a DatasetService together with the backend resources it owns.
type Dataset struct {
	Service *services.DatasetService
	Backend *backend.BackendResult
}

// Close releases the backend resources.
func (d *Dataset) Close() error {
	return d.Backend.Close()
}

// BuildDataset creates the table source and cache from cfg and wires them
// into a DatasetService. The SQLite cache also records the refresh history.
func BuildDataset(ctx context.Context, cfg *config.Config, logger *applog.Logger, opts ...services.Option) (*Dataset, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}

	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	// A nil backend still carries the TTL, which paces in-memory reloads.
	store := cache.NewStore(res.Cache,
		cache.WithTTL(cfg.CacheTTL),
		cache.WithLogger(logger.WithComponent(applog.ComponentCache).Logger))

	base := []services.Option{services.WithLogger(logger.WithComponent(applog.ComponentDataset).Logger)}
	if res.Repository != nil {
		base = append(base, services.WithRecorder(res.Repository))
	}

	fetcher := sheets.NewFetcher(res.Source, cfg.FetchTimeout)
	svc := services.NewDatasetService(fetcher, store, append(base, opts...)...)
	return &Dataset{Service: svc, Backend: res}, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context, logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// Fatal logs err and exits with status 1.
func Fatal(logger *applog.Logger, msg string, err error) {
	logger.Error(msg, applog.FieldError, err, applog.FieldErrorType, applog.ErrorTypeOf(err))
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

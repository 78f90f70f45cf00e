package backend

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"gastos/internal/adapters"
	"gastos/internal/cache"
	applog "gastos/internal/log"
	"gastos/internal/sheets"
	gsheet "gastos/internal/sheets/google"
	"gastos/internal/sheets/memory"
	"gastos/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	source, err := f.createSource(ctx, config)
	if err != nil {
		return nil, err
	}

	result := &BackendResult{Source: source}
	if err := f.attachCache(config, result); err != nil {
		return nil, err
	}

	f.logger.Info("Initialized backend",
		applog.FieldComponent, applog.ComponentBackend,
		"data_backend", config.Type,
		"cache_backend", config.Cache,
		applog.FieldSource, sheets.Describe(source))

	return result, nil
}

func (f *DefaultFactory) createSource(ctx context.Context, config Config) (sheets.ValuesReader, error) {
	switch config.Type {
	case SheetsBackend:
		cli, err := gsheet.New(ctx, gsheet.Config{
			APIKey:        config.GoogleAPIKey,
			SpreadsheetID: config.GoogleSpreadsheetID,
			Range:         config.GoogleRange,
			Endpoint:      config.GoogleEndpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		return cli, nil

	case FileBackend:
		src, err := adapters.NewFileSource(config.DataFile)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize file source: %w", err)
		}
		return src, nil

	case MemoryBackend:
		return f.createMemorySource(ctx, config)

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createMemorySource seeds the memory store from SeedFile when it exists.
func (f *DefaultFactory) createMemorySource(ctx context.Context, config Config) (sheets.ValuesReader, error) {
	if config.SeedFile == "" {
		return memory.NewDemo(), nil
	}
	if _, err := os.Stat(config.SeedFile); errors.Is(err, fs.ErrNotExist) {
		f.logger.Debug("No seed file, using demo table",
			applog.FieldComponent, applog.ComponentBackend,
			"seed_file", config.SeedFile)
		return memory.NewDemo(), nil
	}

	seed, err := adapters.NewFileSource(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}
	table, err := seed.ReadValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return memory.New(table), nil
}

func (f *DefaultFactory) attachCache(config Config, result *BackendResult) error {
	switch config.Cache {
	case NoCache:
		return nil
	case MemoryCache:
		result.Cache = cache.NewMemoryBackend()
	case FileCache:
		fb, err := cache.NewFileBackend(config.CacheDir)
		if err != nil {
			return fmt.Errorf("failed to initialize file cache: %w", err)
		}
		result.Cache = fb
	case SQLiteCache:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		result.Cache = repo
		result.Repository = repo
		result.Cleanup = repo.Close
	}
	return nil
}

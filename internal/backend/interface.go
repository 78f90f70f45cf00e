package backend

import (
	"context"

	"gastos/internal/cache"
	"gastos/internal/sheets"
	"gastos/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains what the dataset service needs, plus cleanup
type BackendResult struct {
	// Source reads the raw expense table.
	Source sheets.ValuesReader
	// Cache is nil when caching is disabled.
	Cache cache.Backend
	// Repository is set when the SQLite cache is in use; it also keeps the
	// refresh history.
	Repository *storage.SQLiteRepository
	Cleanup    CleanupFunc
}

// Close runs Cleanup when present.
func (r *BackendResult) Close() error {
	if r == nil || r.Cleanup == nil {
		return nil
	}
	return r.Cleanup()
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates the table source and cache backend described by config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type  BackendType
	Cache CacheType

	// Google Sheets specific
	GoogleAPIKey        string
	GoogleSpreadsheetID string
	GoogleRange         string
	GoogleEndpoint      string

	// File backend specific
	DataFile string
	// Memory backend seed; the built-in demo table is used when absent
	SeedFile string

	// Cache specific
	CacheDir     string
	SQLiteDBPath string
}

// BackendType represents the type of table source
type BackendType string

const (
	SheetsBackend BackendType = "sheets"
	FileBackend   BackendType = "file"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SheetsBackend, FileBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CacheType represents the persistent cache flavour
type CacheType string

const (
	FileCache   CacheType = "file"
	SQLiteCache CacheType = "sqlite"
	MemoryCache CacheType = "memory"
	NoCache     CacheType = "none"
)

func (ct CacheType) String() string {
	return string(ct)
}

// IsValid returns true if the cache type is valid
func (ct CacheType) IsValid() bool {
	switch ct {
	case FileCache, SQLiteCache, MemoryCache, NoCache:
		return true
	default:
		return false
	}
}

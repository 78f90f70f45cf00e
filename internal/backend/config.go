package backend

import (
	"fmt"
	"path/filepath"

	"gastos/internal/config"
)

// DefaultSeedFile is read by the memory backend when present.
var DefaultSeedFile = filepath.Join("data", "seed_sheet.csv")

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}
	cacheType := CacheType(appConfig.CacheBackend)
	if !cacheType.IsValid() {
		return Config{}, fmt.Errorf("invalid cache type in config: %s", appConfig.CacheBackend)
	}

	return Config{
		Type:  backendType,
		Cache: cacheType,

		GoogleAPIKey:        appConfig.GoogleAPIKey,
		GoogleSpreadsheetID: appConfig.GoogleSpreadsheetID,
		GoogleRange:         appConfig.GoogleRange,
		GoogleEndpoint:      appConfig.GoogleEndpoint,

		DataFile: appConfig.DataFile,
		SeedFile: DefaultSeedFile,

		CacheDir:     appConfig.CacheDir,
		SQLiteDBPath: appConfig.SQLiteDBPath,
	}, nil
}

// Validate validates the backend configuration. Missing Google credentials
// are not an error here: the client reports them on every fetch so the
// dashboard can show the message.
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	if !c.Cache.IsValid() {
		return fmt.Errorf("invalid cache type: %s", c.Cache)
	}

	switch c.Type {
	case FileBackend:
		if c.DataFile == "" {
			return fmt.Errorf("data file is required for file backend")
		}
	}

	switch c.Cache {
	case FileCache:
		if c.CacheDir == "" {
			return fmt.Errorf("cache directory is required for file cache")
		}
	case SQLiteCache:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite cache")
		}
	}

	return nil
}

// GetBackendTypes returns all valid backend types
func GetBackendTypes() []BackendType {
	return []BackendType{SheetsBackend, FileBackend, MemoryBackend}
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	strings := make([]string, len(types))
	for i, t := range types {
		strings[i] = t.String()
	}
	return strings
}

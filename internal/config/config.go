package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Data backends
const (
	DataSheets = "sheets"
	DataFile   = "file"
	DataMemory = "memory"
)

// Cache backends
const (
	CacheFile   = "file"
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
	CacheNone   = "none"
)

type Config struct {
	// HTTP Server
	Port     string
	LogLevel string

	// Table source
	DataBackend string
	DataFile    string

	// Google Sheets
	GoogleAPIKey        string
	GoogleSpreadsheetID string
	GoogleRange         string
	GoogleEndpoint      string
	FetchTimeout        time.Duration

	// Cache
	CacheBackend string
	CacheDir     string
	SQLiteDBPath string
	CacheTTL     time.Duration

	// AMQP, disabled when the URL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", "8081"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DataBackend: strings.ToLower(getEnv("DATA_BACKEND", DataSheets)),
		DataFile:    getEnv("DATA_FILE", ""),

		GoogleAPIKey:        strings.TrimSpace(getEnv("GOOGLE_SHEETS_API_KEY", "")),
		GoogleSpreadsheetID: strings.TrimSpace(getEnv("GOOGLE_SHEETS_SPREADSHEET_ID", "")),
		GoogleRange:         getEnv("GOOGLE_SHEETS_RANGE", "Sheet1!A1:Z100"),
		GoogleEndpoint:      getEnv("GOOGLE_SHEETS_ENDPOINT", ""),
		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 30*time.Second),

		CacheBackend: strings.ToLower(getEnv("CACHE_BACKEND", CacheFile)),
		CacheDir:     getEnv("CACHE_DIR", "./data/cache"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/gastos.db"),
		CacheTTL:     getEnvDuration("CACHE_TTL", time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "gastos"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "dataset_refresh"),
	}

	return cfg
}

// AMQPEnabled reports whether a broker URL is configured.
func (c *Config) AMQPEnabled() bool {
	return strings.TrimSpace(c.AMQPURL) != ""
}

// Validate validates the configuration and returns an error listing every problem
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if level := strings.ToLower(c.LogLevel); level != "" && level != "warning" && !slices.Contains(validLevels, level) {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %v", c.LogLevel, validLevels))
	}

	// Validate data backend
	validBackends := []string{DataSheets, DataFile, DataMemory}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case DataSheets:
		if c.GoogleAPIKey == "" {
			errors = append(errors, "GOOGLE_SHEETS_API_KEY is required when using sheets backend")
		}
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "GOOGLE_SHEETS_SPREADSHEET_ID is required when using sheets backend")
		}
		if c.GoogleEndpoint != "" {
			if u, err := url.Parse(c.GoogleEndpoint); err != nil || u.Scheme == "" || u.Host == "" {
				errors = append(errors, fmt.Sprintf("invalid Google Sheets endpoint '%s'", c.GoogleEndpoint))
			}
		}
	case DataFile:
		if c.DataFile == "" {
			errors = append(errors, "DATA_FILE is required when using file backend")
		} else {
			ext := strings.ToLower(filepath.Ext(c.DataFile))
			if ext != ".csv" && ext != ".xls" {
				errors = append(errors, fmt.Sprintf("invalid data file '%s': must be .csv or .xls", c.DataFile))
			} else if _, err := os.Stat(c.DataFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("data file does not exist: %s", c.DataFile))
			}
		}
	}

	if c.FetchTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid fetch timeout %v: must be positive", c.FetchTimeout))
	}

	// Validate cache backend
	validCaches := []string{CacheFile, CacheSQLite, CacheMemory, CacheNone}
	if !slices.Contains(validCaches, c.CacheBackend) {
		errors = append(errors, fmt.Sprintf("invalid cache backend '%s': must be one of %v", c.CacheBackend, validCaches))
	}
	switch c.CacheBackend {
	case CacheFile:
		if c.CacheDir == "" {
			errors = append(errors, "cache directory cannot be empty when using file cache")
		}
	case CacheSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite cache")
		}
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}

	// Validate AMQP configuration if provided
	if c.AMQPEnabled() {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

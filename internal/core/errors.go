package core

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks deployment problems the user must fix; never retried.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransport marks failed round trips to the spreadsheet API.
	ErrTransport = errors.New("transport error")
	// ErrSchema is returned when the header lacks the required columns.
	ErrSchema = errors.New("missing required columns")
	// ErrInvalidRow is used when a row has no parsable year or month.
	ErrInvalidRow = errors.New("invalid year or month")
)

// ConfigError reports a missing or invalid setting.
type ConfigError struct {
	Setting string // human readable name, e.g. "API key"
	Env     string // environment variable that supplies it
}

func (e *ConfigError) Error() string {
	if e.Env == "" {
		return fmt.Sprintf("%s not configured", e.Setting)
	}
	return fmt.Sprintf("%s not configured. Please set %s", e.Setting, e.Env)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// TransportError carries the best message available for a failed request.
type TransportError struct {
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *TransportError) Error() string {
	return "failed to fetch sheet: " + e.Message
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsRetryable reports whether showing a retry control makes sense for err.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrConfiguration)
}

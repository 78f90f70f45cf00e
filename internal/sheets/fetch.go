package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gastos/internal/core"
	applog "gastos/internal/log"
)

// DefaultFetchTimeout bounds a single round trip to the table source.
const DefaultFetchTimeout = 30 * time.Second

// Fetcher reads the expenses table from a source and assembles it.
type Fetcher struct {
	reader  ValuesReader
	timeout time.Duration
}

// NewFetcher wraps reader. A non-positive timeout selects DefaultFetchTimeout.
func NewFetcher(reader ValuesReader, timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &Fetcher{reader: reader, timeout: timeout}
}

// FetchExpenses performs one read (no retry) and returns the sorted records.
// Every failure is wrapped as "failed to fetch Google Sheets data: ..." and
// keeps its cause for errors.Is/As.
func (f *Fetcher) FetchExpenses(ctx context.Context) ([]core.MonthlyRecord, error) {
	if f == nil || f.reader == nil {
		return nil, wrapFetchError(&core.ConfigError{Setting: "Expense data source"})
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	source := Describe(f.reader)
	start := time.Now()
	slog.DebugContext(ctx, "Fetching expense data",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldSource, source)

	values, err := f.reader.ReadValues(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, core.ErrTransport) {
			err = &core.TransportError{Message: fmt.Sprintf("timed out after %s", f.timeout), Err: err}
		}
		slog.ErrorContext(ctx, "Error fetching expense data",
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldSource, source,
			applog.FieldError, err)
		return nil, wrapFetchError(err)
	}

	records := Assemble(ctx, values)
	slog.InfoContext(ctx, "Successfully fetched and parsed expense data",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldSource, source,
		applog.FieldRecords, len(records),
		applog.FieldDuration, time.Since(start).Milliseconds())
	return records, nil
}

func wrapFetchError(err error) error {
	return fmt.Errorf("failed to fetch Google Sheets data: %w", err)
}

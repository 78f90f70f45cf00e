package sheets

import (
	"context"
	"log/slog"
	"slices"

	"gastos/internal/core"
	applog "gastos/internal/log"
)

// Report describes what Assemble did with a table.
type Report struct {
	Rows       int      // data rows seen, header excluded
	Parsed     int      // records produced
	Skipped    []int    // 1-based sheet row numbers that were rejected
	Categories []string // category columns in header order
	SchemaErr  error    // non-nil when the header lacked year or month
}

// Assemble parses a raw table (header row first) into monthly records sorted
// most recent first. Tables without data rows and tables whose header lacks
// year or month yield an empty list.
func Assemble(ctx context.Context, values [][]string) []core.MonthlyRecord {
	records, _ := AssembleWithReport(ctx, values)
	return records
}

// AssembleWithReport is Assemble plus a description of skipped rows.
func AssembleWithReport(ctx context.Context, values [][]string) ([]core.MonthlyRecord, Report) {
	var rep Report
	if len(values) < 2 {
		slog.WarnContext(ctx, "No data found in sheet",
			applog.FieldComponent, applog.ComponentSheets,
			"rows", len(values))
		return []core.MonthlyRecord{}, rep
	}

	schema, err := InferSchema(values[0])
	if err != nil {
		rep.SchemaErr = err
		slog.WarnContext(ctx, "Sheet header unusable, treating as no data",
			applog.FieldComponent, applog.ComponentSheets,
			applog.FieldError, err)
		return []core.MonthlyRecord{}, rep
	}
	rep.Categories = schema.CategoryNames()
	slog.DebugContext(ctx, "Found categories",
		applog.FieldComponent, applog.ComponentSheets,
		"categories", rep.Categories)

	records := make([]core.MonthlyRecord, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		rep.Rows++
		rec, ok := ParseRow(values[i], schema)
		if !ok {
			rep.Skipped = append(rep.Skipped, i+1)
			slog.DebugContext(ctx, "Skipping row",
				applog.FieldComponent, applog.ComponentSheets,
				"row", i+1,
				applog.FieldError, core.ErrInvalidRow)
			continue
		}
		records = append(records, rec)
	}
	SortRecords(records)
	rep.Parsed = len(records)

	slog.DebugContext(ctx, "Parsed expense records",
		applog.FieldComponent, applog.ComponentSheets,
		applog.FieldRecords, rep.Parsed,
		"skipped", len(rep.Skipped))
	return records, rep
}

// SortRecords orders records by year then month, most recent first. Records
// for the same month keep their relative order.
func SortRecords(records []core.MonthlyRecord) {
	slices.SortStableFunc(records, func(a, b core.MonthlyRecord) int {
		if a.Year != b.Year {
			return b.Year - a.Year
		}
		return b.Month - a.Month
	})
}

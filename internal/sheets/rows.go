package sheets

import (
	"fmt"
	"strings"

	"gastos/internal/core"
)

// ParseRow converts one data row into a MonthlyRecord. It returns false for
// empty rows and rows whose year or month is not an integer. Malformed
// category cells become zero instead of rejecting the row.
func ParseRow(row []string, s Schema) (core.MonthlyRecord, bool) {
	if len(row) == 0 {
		return core.MonthlyRecord{}, false
	}

	year, ok := core.ParseLeadingInt(safeGet(row, s.Year))
	if !ok {
		return core.MonthlyRecord{}, false
	}
	month, ok := core.ParseLeadingInt(safeGet(row, s.Month))
	if !ok {
		return core.MonthlyRecord{}, false
	}

	rec := core.MonthlyRecord{
		Year:       year,
		Month:      month,
		Categories: make(core.Categories, 0, len(s.Categories)),
	}
	for _, col := range s.Categories {
		rec.Categories.Set(col.Name, core.ParseCategoryAmount(safeGet(row, col.Index)))
	}
	if s.HasTotal() {
		rec.Total = core.ParseOptionalAmount(safeGet(row, s.Total))
	}
	if s.HasNotes() {
		rec.Notes = strings.TrimSpace(safeGet(row, s.Notes))
	}
	return rec, true
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// toStrings converts API cell values into trimmed strings; nil cells become "".
func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[i] = strings.TrimSpace(s)
			continue
		}
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// ToTable converts a values matrix as returned by the Sheets API.
func ToTable(values [][]interface{}) [][]string {
	if values == nil {
		return nil
	}
	out := make([][]string, len(values))
	for i, row := range values {
		out[i] = toStrings(row)
	}
	return out
}

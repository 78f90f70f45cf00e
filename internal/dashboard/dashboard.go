// Package dashboard derives the per-month view of the expense dataset:
// selectable periods, enabled categories and their totals.
package dashboard

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// YearMonth identifies one month of the dataset.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// Entry is one category of the selected month.
type Entry struct {
	Name    string      `json:"name"`
	Amount  core.Amount `json:"amount"`
	Enabled bool        `json:"enabled"`
	// Share is the percentage of the selected total, zero when disabled.
	Share float64 `json:"share"`
}

// TopExpense is the largest enabled category.
type TopExpense struct {
	Name   string      `json:"name"`
	Amount core.Amount `json:"amount"`
}

// Summary is everything the dashboard shows for one month.
type Summary struct {
	Year          int          `json:"year"`
	Month         int          `json:"month"`
	MonthName     string       `json:"monthName"`
	Entries       []Entry      `json:"entries"`
	SelectedTotal core.Amount  `json:"selectedTotal"`
	SheetTotal    *core.Amount `json:"sheetTotal,omitempty"`
	Top           *TopExpense  `json:"topExpense,omitempty"`
	Notes         string       `json:"notes,omitempty"`
	NotesHTML     string       `json:"notesHtml,omitempty"`
}

// Enabled returns the enabled entries in column order.
func (s Summary) Enabled() []Entry {
	out := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}

var monthNames = [...]string{
	"Enero", "Febrero", "Marzo", "Abril", "Mayo", "Junio",
	"Julio", "Agosto", "Septiembre", "Octubre", "Noviembre", "Diciembre",
}

// MonthName returns the Spanish month name, or "Mes N" outside 1-12.
func MonthName(month int) string {
	if month < 1 || month > 12 {
		return fmt.Sprintf("Mes %d", month)
	}
	return monthNames[month-1]
}

// LatestMonth returns the record with the greatest (year, month). The first
// of equal records wins.
func LatestMonth(records []core.MonthlyRecord) (core.MonthlyRecord, bool) {
	if len(records) == 0 {
		return core.MonthlyRecord{}, false
	}
	latest := records[0]
	for _, r := range records[1:] {
		if r.Year > latest.Year || (r.Year == latest.Year && r.Month > latest.Month) {
			latest = r
		}
	}
	return latest, true
}

// Years returns the distinct years, most recent first.
func Years(records []core.MonthlyRecord) []int {
	seen := make(map[int]struct{}, len(records))
	years := make([]int, 0)
	for _, r := range records {
		if _, ok := seen[r.Year]; ok {
			continue
		}
		seen[r.Year] = struct{}{}
		years = append(years, r.Year)
	}
	slices.SortFunc(years, func(a, b int) int { return b - a })
	return years
}

// Months returns the distinct (year, month) pairs in list order.
func Months(records []core.MonthlyRecord) []YearMonth {
	seen := make(map[YearMonth]struct{}, len(records))
	out := make([]YearMonth, 0, len(records))
	for _, r := range records {
		ym := YearMonth{Year: r.Year, Month: r.Month}
		if _, ok := seen[ym]; ok {
			continue
		}
		seen[ym] = struct{}{}
		out = append(out, ym)
	}
	return out
}

// MonthsOfYear returns the distinct months present for year, ascending.
func MonthsOfYear(records []core.MonthlyRecord, year int) []int {
	var months []int
	for _, ym := range Months(records) {
		if ym.Year == year {
			months = append(months, ym.Month)
		}
	}
	slices.Sort(months)
	return months
}

// Find returns the first record for (year, month).
func Find(records []core.MonthlyRecord, year, month int) (core.MonthlyRecord, bool) {
	for _, r := range records {
		if r.Year == year && r.Month == month {
			return r, true
		}
	}
	return core.MonthlyRecord{}, false
}

// Summarize computes the month view with the categories in disabled switched
// off. Unknown names in disabled are ignored.
func Summarize(record core.MonthlyRecord, disabled map[string]bool) Summary {
	s := Summary{
		Year:       record.Year,
		Month:      record.Month,
		MonthName:  MonthName(record.Month),
		Entries:    make([]Entry, 0, len(record.Categories)),
		SheetTotal: record.Total,
		Notes:      record.Notes,
		NotesHTML:  RenderNotes(record.Notes),
	}

	total := decimal.Zero
	for _, c := range record.Categories {
		enabled := !disabled[c.Name]
		s.Entries = append(s.Entries, Entry{Name: c.Name, Amount: c.Amount, Enabled: enabled})
		if !enabled {
			continue
		}
		total = total.Add(c.Amount.Decimal)
		// Strictly greater keeps the first of equal amounts.
		if c.Amount.IsPositive() && (s.Top == nil || c.Amount.GreaterThan(s.Top.Amount.Decimal)) {
			s.Top = &TopExpense{Name: c.Name, Amount: c.Amount}
		}
	}
	s.SelectedTotal = core.NewAmount(total)

	if total.IsPositive() {
		hundred := decimal.NewFromInt(100)
		for i, e := range s.Entries {
			if e.Enabled {
				s.Entries[i].Share = e.Amount.Div(total).Mul(hundred).Round(2).InexactFloat64()
			}
		}
	}
	return s
}

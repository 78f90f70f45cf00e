package http

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"gastos/internal/core"
	"gastos/internal/dashboard"
)

// summaryKey identifies a memoised summary of one dataset generation.
func summaryKey(generation int64, year, month int, disabled []string) string {
	return strconv.FormatInt(generation, 36) + "|" + strconv.Itoa(year) + "-" + strconv.Itoa(month) + "|" + strings.Join(disabled, "\x1f")
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// toggleLink builds the dashboard URL that flips one category.
func toggleLink(year, month int, disabled map[string]bool, name string) string {
	q := url.Values{}
	q.Set("year", strconv.Itoa(year))
	q.Set("month", strconv.Itoa(month))
	var names []string
	for n := range disabled {
		if n != name {
			names = append(names, n)
		}
	}
	if !disabled[name] {
		names = append(names, name)
	}
	if len(names) > 0 {
		slices.Sort(names)
		q.Set("disabled", strings.Join(names, ","))
	}
	return "/?" + q.Encode()
}

// formatAmount is the template helper for amounts.
func formatAmount(a any) string {
	switch v := a.(type) {
	case core.Amount:
		return dashboard.FormatCurrency(v)
	case *core.Amount:
		if v == nil {
			return ""
		}
		return dashboard.FormatCurrency(*v)
	default:
		return ""
	}
}

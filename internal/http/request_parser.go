package http

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// MonthParams holds the optional year/month selection of a request.
type MonthParams struct {
	Year  int
	Month int
	// Set is false when neither year nor month was given.
	Set bool
}

// SummaryParams is the parsed query of a summary request.
type SummaryParams struct {
	MonthParams
	Disabled map[string]bool
}

var errPartialMonth = errors.New("year and month must be given together")

// ParseMonthParams reads year and month from the query. Both or neither must
// be present; values must be integers.
func ParseMonthParams(query url.Values) (MonthParams, error) {
	ys := strings.TrimSpace(query.Get("year"))
	ms := strings.TrimSpace(query.Get("month"))
	if ys == "" && ms == "" {
		return MonthParams{}, nil
	}
	if ys == "" || ms == "" {
		return MonthParams{}, errPartialMonth
	}

	year, err := strconv.Atoi(ys)
	if err != nil {
		return MonthParams{}, fmt.Errorf("invalid year %q", ys)
	}
	month, err := strconv.Atoi(ms)
	if err != nil {
		return MonthParams{}, fmt.Errorf("invalid month %q", ms)
	}
	return MonthParams{Year: year, Month: month, Set: true}, nil
}

// ParseDisabled collects category names from every "disabled" parameter,
// each a comma-separated list.
func ParseDisabled(query url.Values) map[string]bool {
	disabled := make(map[string]bool)
	for _, v := range query["disabled"] {
		for _, name := range strings.Split(v, ",") {
			if name = sanitizeInput(name); name != "" {
				disabled[name] = true
			}
		}
	}
	return disabled
}

// ParseSummaryParams combines ParseMonthParams and ParseDisabled.
func ParseSummaryParams(query url.Values) (SummaryParams, error) {
	mp, err := ParseMonthParams(query)
	if err != nil {
		return SummaryParams{}, err
	}
	return SummaryParams{MonthParams: mp, Disabled: ParseDisabled(query)}, nil
}

// disabledList returns the disabled names sorted, for stable cache keys and
// links.
func (p SummaryParams) disabledList() []string {
	names := make([]string, 0, len(p.Disabled))
	for name := range p.Disabled {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

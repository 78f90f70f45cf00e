package dashboard

import (
	"errors"
	"fmt"

	"github.com/montanaflynn/stats"

	"gastos/internal/core"
)

// ErrUnknownCategory is returned when no record has the requested category.
var ErrUnknownCategory = errors.New("unknown category")

// CategoryStats summarises one category across all months that carry it.
type CategoryStats struct {
	Category string      `json:"category"`
	Months   int         `json:"months"`
	Total    float64     `json:"total"`
	Mean     float64     `json:"mean"`
	Median   float64     `json:"median"`
	Min      float64     `json:"min"`
	Max      float64     `json:"max"`
	StdDev   float64     `json:"stddev"` // population standard deviation
	Latest   *YearMonth  `json:"latest,omitempty"`
	Series   []MonthData `json:"series"`
}

// MonthData is one point of a category series.
type MonthData struct {
	Year   int     `json:"year"`
	Month  int     `json:"month"`
	Amount float64 `json:"amount"`
}

// ComputeCategoryStats walks records in list order (most recent first) and
// aggregates the named category.
func ComputeCategoryStats(records []core.MonthlyRecord, name string) (CategoryStats, error) {
	out := CategoryStats{Category: name}
	var data stats.Float64Data
	for _, r := range records {
		amt, ok := r.Categories.Get(name)
		if !ok {
			continue
		}
		v := amt.InexactFloat64()
		data = append(data, v)
		out.Series = append(out.Series, MonthData{Year: r.Year, Month: r.Month, Amount: v})
		if out.Latest == nil {
			out.Latest = &YearMonth{Year: r.Year, Month: r.Month}
		}
	}
	if len(data) == 0 {
		return out, fmt.Errorf("%w: %s", ErrUnknownCategory, name)
	}

	var err error
	out.Months = len(data)
	if out.Total, err = stats.Sum(data); err != nil {
		return out, err
	}
	if out.Mean, err = stats.Mean(data); err != nil {
		return out, err
	}
	if out.Median, err = stats.Median(data); err != nil {
		return out, err
	}
	if out.Min, err = stats.Min(data); err != nil {
		return out, err
	}
	if out.Max, err = stats.Max(data); err != nil {
		return out, err
	}
	if out.StdDev, err = stats.StandardDeviation(data); err != nil {
		return out, err
	}
	if out.Mean, err = stats.Round(out.Mean, 2); err != nil {
		return out, err
	}
	if out.StdDev, err = stats.Round(out.StdDev, 2); err != nil {
		return out, err
	}
	return out, nil
}

package sheets

import (
	"fmt"
	"strings"

	"gastos/internal/core"
)

// Role names matched against header cells, case-insensitively.
const (
	HeaderYear  = "year"
	HeaderMonth = "month"
	HeaderNotes = "notes"
	HeaderTotal = "total"
)

// Column is a category column of the sheet.
type Column struct {
	Index int
	Name  string
}

// Schema maps column roles to indices. Notes and Total are -1 when the sheet
// has no such column.
type Schema struct {
	Year       int
	Month      int
	Notes      int
	Total      int
	Categories []Column
}

// HasNotes reports whether a notes column was found.
func (s Schema) HasNotes() bool { return s.Notes >= 0 }

// HasTotal reports whether a total column was found.
func (s Schema) HasTotal() bool { return s.Total >= 0 }

// CategoryNames returns category names in column order.
func (s Schema) CategoryNames() []string {
	out := make([]string, len(s.Categories))
	for i, c := range s.Categories {
		out[i] = c.Name
	}
	return out
}

// InferSchema locates the year, month, notes and total columns of header and
// treats every other non-empty header as a category, left to right. The first
// occurrence of a role header wins; repeated role headers are ignored.
// It returns an error wrapping core.ErrSchema when year or month is missing.
func InferSchema(header []string) (Schema, error) {
	s := Schema{Year: -1, Month: -1, Notes: -1, Total: -1}
	for i, raw := range header {
		h := strings.TrimSpace(raw)
		if h == "" {
			continue
		}
		switch strings.ToLower(h) {
		case HeaderYear:
			if s.Year == -1 {
				s.Year = i
			}
		case HeaderMonth:
			if s.Month == -1 {
				s.Month = i
			}
		case HeaderNotes:
			if s.Notes == -1 {
				s.Notes = i
			}
		case HeaderTotal:
			if s.Total == -1 {
				s.Total = i
			}
		default:
			s.Categories = append(s.Categories, Column{Index: i, Name: h})
		}
	}

	if s.Year == -1 || s.Month == -1 {
		missing := make([]string, 0, 2)
		if s.Year == -1 {
			missing = append(missing, "Year")
		}
		if s.Month == -1 {
			missing = append(missing, "Month")
		}
		return Schema{}, fmt.Errorf("%w: %s; got headers=%v", core.ErrSchema, strings.Join(missing, ","), header)
	}
	return s, nil
}

package memory

import (
	"context"
	"sync"

	"gastos/internal/sheets"
)

// Store is an in-process table source. It serves a fixed table until it is
// replaced, which makes it handy for demos and tests.
type Store struct {
	mu    sync.Mutex
	table [][]string
	reads int
}

var (
	_ sheets.ValuesReader = (*Store)(nil)
	_ sheets.Describer    = (*Store)(nil)
)

func New(table [][]string) *Store {
	return &Store{table: cloneTable(table)}
}

// NewDemo returns a store seeded with a small bilingual demo sheet.
func NewDemo() *Store {
	return New(DemoTable())
}

// DemoTable is the seed used when no data file is configured.
func DemoTable() [][]string {
	return [][]string{
		{"Year", "Month", "Affitto", "Spesa", "Trasporti", "Svago", "Total", "Notes"},
		{"2024", "1", "750", "312,40", "45", "60", "1167,40", "Saldi invernali"},
		{"2024", "2", "750", "298,15", "45", "", "", ""},
		{"2024", "3", "750", "1.020,00", "52,30", "120", "", "**Rinnovo** assicurazione casa"},
		{"2023", "12", "720", "410", "45", "230,50", "1405,50", "Regali di Natale"},
	}
}

// Replace swaps the served table.
func (s *Store) Replace(table [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = cloneTable(table)
}

// Reads returns how many times the table has been read.
func (s *Store) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}

// ReadValues implements sheets.ValuesReader.
func (s *Store) ReadValues(ctx context.Context) ([][]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return cloneTable(s.table), nil
}

func (s *Store) Describe() string { return "memory" }

func cloneTable(in [][]string) [][]string {
	if in == nil {
		return nil
	}
	out := make([][]string, len(in))
	for i, row := range in {
		out[i] = append([]string(nil), row...)
	}
	return out
}

package sheets

import (
	"context"
)

// Ports for outbound adapters.
type (
	// ValuesReader returns the configured cell range as a 2D table whose
	// first row holds the headers. Rows may be shorter than the header.
	ValuesReader interface {
		ReadValues(ctx context.Context) ([][]string, error)
	}

	// Describer is implemented by sources that can name what they read,
	// e.g. "sheets:<id>/Sheet1!A1:Z100". Used for logging only.
	Describer interface {
		Describe() string
	}
)

// Describe returns a label for r, falling back to "unknown".
func Describe(r ValuesReader) string {
	if d, ok := r.(Describer); ok {
		return d.Describe()
	}
	return "unknown"
}

package dashboard

import (
	"strings"

	"gastos/internal/core"
)

// FormatCurrency renders an amount as "$1,234.56", rounded half away from
// zero to cents.
func FormatCurrency(a core.Amount) string {
	s := a.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(s, ".")

	var b strings.Builder
	if a.IsNegative() && s != "0.00" {
		b.WriteByte('-')
	}
	b.WriteByte('$')
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	b.WriteByte('.')
	b.WriteString(frac)
	return b.String()
}

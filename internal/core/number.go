// Package core provides the domain types of the expense dashboard and the
// tolerant number parsing used when reading spreadsheet cells.
//
// Spreadsheet locales mix "1.234,56", "1,234.56" and "1234"; the functions in
// this file resolve the common cases without a locale flag.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// NormalizeNumber turns a raw cell into a plain decimal string made of an
// optional leading minus, digits and at most one dot. It returns "" when
// nothing numeric remains.
//
// Examples:
//
//	NormalizeNumber("1.234,56") -> "1234.56"
//	NormalizeNumber("1,234.56") -> "1234.56"
//	NormalizeNumber("€ 1.200")  -> "1200"
//	NormalizeNumber("-45,90")   -> "-45.90"
//	NormalizeNumber("abc")      -> ""
func NormalizeNumber(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	sanitized := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == ',', r == '.', r == '-':
			return r
		default:
			return -1
		}
	}, trimmed)
	if sanitized == "" {
		return ""
	}

	negative := strings.HasPrefix(sanitized, "-")
	unsigned := strings.ReplaceAll(sanitized, "-", "")
	if unsigned == "" {
		return ""
	}

	hasComma := strings.Contains(unsigned, ",")
	hasDot := strings.Contains(unsigned, ".")
	normalized := unsigned

	switch {
	case hasComma && hasDot:
		// The separator that occurs last is the decimal mark.
		if strings.LastIndex(unsigned, ",") > strings.LastIndex(unsigned, ".") {
			normalized = strings.ReplaceAll(unsigned, ".", "")
			normalized = strings.ReplaceAll(normalized, ",", ".")
		} else {
			normalized = strings.ReplaceAll(unsigned, ",", "")
		}
	case hasComma:
		normalized = strings.ReplaceAll(unsigned, ",", ".")
	case hasDot:
		parts := strings.Split(unsigned, ".")
		if len(parts) > 2 {
			normalized = strings.ReplaceAll(unsigned, ".", "")
		} else if whole, fraction := parts[0], parts[1]; len(fraction) == 3 && whole != "" {
			normalized = whole + fraction
		}
	}

	if negative {
		return "-" + normalized
	}
	return normalized
}

// ParseNumber parses a raw cell into an Amount. The boolean is false when the
// cell holds no usable number.
func ParseNumber(raw string) (Amount, bool) {
	normalized := NormalizeNumber(raw)
	if normalized == "" {
		return Amount{}, false
	}
	d, err := decimal.NewFromString(normalized)
	if err != nil {
		return Amount{}, false
	}
	return Amount{Decimal: d}, true
}

// ParseCategoryAmount parses a category cell. Unparsable or missing cells
// count as zero.
func ParseCategoryAmount(raw string) Amount {
	if a, ok := ParseNumber(raw); ok {
		return a
	}
	return Amount{Decimal: decimal.Zero}
}

// ParseOptionalAmount parses a cell that may legitimately be absent, such as
// the sheet total. It returns nil when the cell holds no usable number.
func ParseOptionalAmount(raw string) *Amount {
	if a, ok := ParseNumber(raw); ok {
		return &a
	}
	return nil
}

// ParseLeadingInt reads an optionally signed integer from the start of the
// trimmed cell and ignores whatever follows it ("2024", "3.0", "12 bis").
// It fails when no digit is found or the value does not fit an int32.
func ParseLeadingInt(raw string) (int, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, false
	}
	sign := 1
	switch s[0] {
	case '-':
		sign = -1
		s = s[1:]
	case '+':
		s = s[1:]
	}
	n, digits := 0, 0
	for digits < len(s) && s[digits] >= '0' && s[digits] <= '9' {
		n = n*10 + int(s[digits]-'0')
		if n > 1<<31-1 {
			return 0, false
		}
		digits++
	}
	if digits == 0 {
		return 0, false
	}
	return sign * n, true
}

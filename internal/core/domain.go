package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type (
	// Amount is a canonical decimal value. It encodes to JSON as a bare number.
	Amount struct {
		decimal.Decimal
	}

	// CategoryAmount is one named expense bucket of a month.
	CategoryAmount struct {
		Name   string
		Amount Amount
	}

	// Categories keeps category amounts in spreadsheet column order.
	Categories []CategoryAmount

	// MonthlyRecord is one parsed (year, month) row of the expenses sheet.
	MonthlyRecord struct {
		Year       int        `json:"year"`
		Month      int        `json:"month"` // 1-12
		Categories Categories `json:"categories"`
		Total      *Amount    `json:"total,omitempty"` // sheet-provided total, when present
		Notes      string     `json:"notes,omitempty"`
	}
)

var ErrDuplicateCategory = errors.New("duplicate category")

// NewAmount wraps a decimal.
func NewAmount(d decimal.Decimal) Amount {
	return Amount{Decimal: d}
}

// AmountFromString parses a plain decimal string such as "1200.5".
func AmountFromString(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, err
	}
	return Amount{Decimal: d}, nil
}

// Ptr returns a pointer to a copy of a.
func (a Amount) Ptr() *Amount {
	return &a
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(a.Decimal.String()), nil
}

func (a *Amount) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "null" {
		a.Decimal = decimal.Zero
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", s, err)
	}
	a.Decimal = d
	return nil
}

// Set stores amount under name. An existing name keeps its position and
// takes the new amount.
func (c *Categories) Set(name string, amount Amount) {
	for i := range *c {
		if (*c)[i].Name == name {
			(*c)[i].Amount = amount
			return
		}
	}
	*c = append(*c, CategoryAmount{Name: name, Amount: amount})
}

// Get returns the amount stored for name.
func (c Categories) Get(name string) (Amount, bool) {
	for _, ca := range c {
		if ca.Name == name {
			return ca.Amount, true
		}
	}
	return Amount{}, false
}

// Names returns category names in column order.
func (c Categories) Names() []string {
	out := make([]string, len(c))
	for i, ca := range c {
		out[i] = ca.Name
	}
	return out
}

// MarshalJSON encodes the categories as an object whose keys keep column order.
func (c Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ca := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(ca.Name)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.WriteString(ca.Amount.String())
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object of category amounts preserving key order.
func (c *Categories) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("categories: expected object, got %v", tok)
	}
	out := Categories{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("categories: expected key, got %v", tok)
		}
		var amt Amount
		if err := dec.Decode(&amt); err != nil {
			return fmt.Errorf("categories[%s]: %w", name, err)
		}
		if _, exists := out.Get(name); exists {
			return fmt.Errorf("%w: %s", ErrDuplicateCategory, name)
		}
		out = append(out, CategoryAmount{Name: name, Amount: amt})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*c = out
	return nil
}

// HasTotal reports whether the sheet provided a parsable total.
func (r MonthlyRecord) HasTotal() bool {
	return r.Total != nil
}

// Key returns "YYYY-MM", used to identify the month in URLs and caches.
func (r MonthlyRecord) Key() string {
	return fmt.Sprintf("%04d-%02d", r.Year, r.Month)
}

package importer

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MappingConfig names which column feeds each statement field. Either
// AmountColumn or the MoneyIn/MoneyOut pair must be set; reference and type
// stay unmapped unless a header is unambiguous.
type MappingConfig struct {
	DateColumn        string `json:"dateColumn"`
	DescriptionColumn string `json:"descriptionColumn"`
	AmountColumn      string `json:"amountColumn,omitempty"`
	MoneyInColumn     string `json:"moneyInColumn,omitempty"`
	MoneyOutColumn    string `json:"moneyOutColumn,omitempty"`
	ReferenceColumn   string `json:"referenceColumn,omitempty"`
	TypeColumn        string `json:"typeColumn,omitempty"`
}

// DeriveMapping proposes a best-guess column mapping from header names using
// substring heuristics. The caller confirms or overrides before committing;
// nothing here is final.
func DeriveMapping(headers []string) MappingConfig {
	var m MappingConfig
	for _, h := range headers {
		norm := normalizeHeader(h)
		switch {
		case m.DateColumn == "" && strings.Contains(norm, "date"):
			m.DateColumn = h
		case m.DescriptionColumn == "" && (strings.Contains(norm, "desc") ||
			strings.Contains(norm, "memo") ||
			strings.Contains(norm, "narrative") ||
			strings.Contains(norm, "detail") ||
			norm == "transaction"):
			m.DescriptionColumn = h
		case m.MoneyInColumn == "" && (strings.Contains(norm, "paid in") ||
			strings.Contains(norm, "money in") ||
			strings.Contains(norm, "credit")):
			m.MoneyInColumn = h
		case m.MoneyOutColumn == "" && (strings.Contains(norm, "paid out") ||
			strings.Contains(norm, "money out") ||
			strings.Contains(norm, "debit")):
			m.MoneyOutColumn = h
		case m.AmountColumn == "" && m.MoneyInColumn == "" && m.MoneyOutColumn == "" &&
			(strings.Contains(norm, "amount") || norm == "value"):
			m.AmountColumn = h
		case m.ReferenceColumn == "" && (norm == "reference" || norm == "ref"):
			// only an exact header counts; "bank reference number" must be
			// mapped by the user, not guessed
			m.ReferenceColumn = h
		case m.TypeColumn == "" && norm == "type":
			m.TypeColumn = h
		}
	}
	return m
}

// Valid reports whether the mapping carries enough for an import: a date, a
// description, and some way to read an amount.
func (m MappingConfig) Valid() bool {
	if m.DateColumn == "" || m.DescriptionColumn == "" {
		return false
	}
	return m.AmountColumn != "" || m.MoneyInColumn != "" || m.MoneyOutColumn != ""
}

// MappedRow is one statement line after the mapping has been applied.
type MappedRow struct {
	Date        time.Time
	Description string
	Amount      float64 // signed: money out is negative
	Reference   string
	RowType     string
}

// Apply reads one parsed row through the mapping. Money-out columns produce
// negative amounts; a row with both in and out populated nets the two.
func (m MappingConfig) Apply(row Row) (MappedRow, error) {
	var out MappedRow

	date, err := ParseDate(row.Fields[m.DateColumn])
	if err != nil {
		return out, fmt.Errorf("line %d: %w", row.Line, err)
	}
	out.Date = date
	out.Description = row.Fields[m.DescriptionColumn]

	if m.AmountColumn != "" {
		amt, err := ParseAmount(row.Fields[m.AmountColumn])
		if err != nil {
			return out, fmt.Errorf("line %d: %w", row.Line, err)
		}
		out.Amount = amt
	} else {
		var in, outAmt float64
		if v := row.Fields[m.MoneyInColumn]; v != "" {
			if in, err = ParseAmount(v); err != nil {
				return out, fmt.Errorf("line %d: %w", row.Line, err)
			}
		}
		if v := row.Fields[m.MoneyOutColumn]; v != "" {
			if outAmt, err = ParseAmount(v); err != nil {
				return out, fmt.Errorf("line %d: %w", row.Line, err)
			}
		}
		out.Amount = in - outAmt
	}

	if m.ReferenceColumn != "" {
		out.Reference = row.Fields[m.ReferenceColumn]
	}
	if m.TypeColumn != "" {
		out.RowType = row.Fields[m.TypeColumn]
	}
	return out, nil
}

var dateLayouts = []string{
	"02/01/2006",
	"2006-01-02",
	"02-01-2006",
	"02 Jan 2006",
	"2 Jan 2006",
	"02/01/06",
}

// ParseDate accepts the date formats UK bank exports actually use.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}

// ParseAmount handles currency symbols, thousands separators, and
// parenthesised negatives.
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimPrefix(s, "£")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("unrecognised amount %q", s)
	}
	if negative {
		v = -v
	}
	return v, nil
}

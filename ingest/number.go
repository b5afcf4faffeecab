package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrEmptyNumber is returned when a numeric field carries no digits.
var ErrEmptyNumber = errors.New("empty number")

// LocaleNumber is an upstream numeric field. The source sends either a JSON
// number or a locale-formatted string such as "1.234,56" or "-0,85%".
type LocaleNumber struct {
	Raw        string
	JSONNumber bool
}

func (n *LocaleNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*n = LocaleNumber{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*n = LocaleNumber{Raw: s}
		return nil
	}
	*n = LocaleNumber{Raw: string(b), JSONNumber: true}
	return nil
}

// Decimal parses the field. JSON numbers are already canonical; strings go
// through ParseLocaleDecimal.
func (n LocaleNumber) Decimal() (decimal.Decimal, error) {
	if n.JSONNumber {
		return decimal.NewFromString(n.Raw)
	}
	return ParseLocaleDecimal(n.Raw)
}

// ParseLocaleDecimal normalizes a locale-formatted decimal and parses it.
//
// When both '.' and ',' appear, the last one is the decimal separator and
// the other is a thousands separator. A repeated separator is a thousands
// separator. A single ',' is the decimal separator. A single '.' followed by
// exactly three digits, with a non-zero integer part, groups thousands
// ("1.500" is 1500, as the exchange formats integer volumes); otherwise it is
// the decimal separator. Spaces, a leading '+' and a trailing '%' are dropped.
func ParseLocaleDecimal(s string) (decimal.Decimal, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '%', '+':
			return -1
		}
		return r
	}, s)
	if clean == "" || clean == "-" {
		return decimal.Zero, ErrEmptyNumber
	}

	lastDot := strings.LastIndex(clean, ".")
	lastComma := strings.LastIndex(clean, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			clean = strings.ReplaceAll(clean, ".", "")
			clean = strings.Replace(clean, ",", ".", 1)
		} else {
			clean = strings.ReplaceAll(clean, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(clean, ",") > 1 {
			clean = strings.ReplaceAll(clean, ",", "")
		} else {
			clean = strings.Replace(clean, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(clean, ".") > 1 || isThousandsGroup(clean, lastDot) {
			clean = strings.ReplaceAll(clean, ".", "")
		}
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return d, nil
}

// isThousandsGroup reports whether the single dot at i splits a non-zero
// integer part from exactly three trailing digits.
func isThousandsGroup(s string, i int) bool {
	intPart := strings.TrimPrefix(s[:i], "-")
	frac := s[i+1:]
	if len(frac) != 3 || intPart == "" || len(intPart) > 3 || intPart[0] == '0' {
		return false
	}
	return isDigits(intPart) && isDigits(frac)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

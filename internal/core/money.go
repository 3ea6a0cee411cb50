// Package core holds the domain model of the ledger: typed records for the
// four collections, money and date handling, and the pure aggregation
// functions over them.
package core

import (
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToCents converts a positive decimal string to cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted; the third
// decimal digit is rounded half-up. Signs, zero and negative values are
// rejected.
func ParseDecimalToCents(s string) (int64, error) {
	cents, neg, signed, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	if neg || signed || cents <= 0 {
		return 0, ErrInvalidAmount
	}
	return cents, nil
}

// ParseSignedDecimalToCents is the signed variant used for debt transactions,
// where a leading minus marks a payment received. Zero is still rejected.
func ParseSignedDecimalToCents(s string) (int64, error) {
	cents, neg, _, err := parseDecimal(s)
	if err != nil {
		return 0, err
	}
	if cents == 0 {
		return 0, ErrInvalidAmount
	}
	if neg {
		return -cents, nil
	}
	return cents, nil
}

// parseDecimal reports the magnitude in cents, whether the value was negative
// and whether any explicit sign was present, so the positive-only parser can
// reject "+1" as well as "-1".
func parseDecimal(s string) (cents int64, neg, signed bool, err error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	switch {
	case strings.HasPrefix(s, "-"):
		neg, signed = true, true
		s = s[1:]
	case strings.HasPrefix(s, "+"):
		signed = true
		s = s[1:]
	}
	if s == "" {
		return 0, false, signed, ErrInvalidAmount
	}

	intPart, fracPart := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
		if strings.ContainsRune(fracPart, '.') {
			return 0, false, signed, ErrInvalidAmount
		}
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart + fracPart {
		if !unicode.IsDigit(r) {
			return 0, false, signed, ErrInvalidAmount
		}
	}

	iv, perr := strconv.ParseInt(intPart, 10, 64)
	if perr != nil {
		return 0, false, signed, ErrInvalidAmount
	}
	const maxWhole = (1<<63 - 1) / 100
	if iv > maxWhole {
		return 0, false, signed, ErrInvalidAmount
	}

	// First two fractional digits, half-up rounding on the third.
	var frac int64
	if len(fracPart) > 0 {
		frac = int64(fracPart[0]-'0') * 10
	}
	if len(fracPart) > 1 {
		frac += int64(fracPart[1] - '0')
	}
	if len(fracPart) > 2 && fracPart[2] >= '5' {
		frac++
	}

	return iv*100 + frac, neg, signed, nil
}

// Units returns the whole-currency value for display. Calculations must use
// cents to stay exact.
func (m Money) Units() float64 {
	return float64(m.Cents) / 100.0
}

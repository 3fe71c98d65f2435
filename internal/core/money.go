// Package core holds the expense-splitting domain: the group state, the
// balance calculator and the settlement planner.
//
// This file contains amount parsing, formatting and the zero tolerance shared
// by the balance and settlement computations.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var tolerance = decimal.New(1, -2)

// Tolerance returns the magnitude below which a balance counts as settled
// (one cent).
func Tolerance() decimal.Decimal { return tolerance }

// ParseAmount converts a user supplied decimal string into a positive amount.
//
// Both dot (12.34) and comma (12,34) separators are accepted. No rounding is
// applied; the value is kept at full precision.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34, nil
//	ParseAmount("12,345") -> 12.345, nil
//	ParseAmount("-1")     -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, part := range parts {
		for _, r := range part {
			if !unicode.IsDigit(r) {
				return decimal.Zero, ErrInvalidAmount
			}
		}
	}
	if parts[0] == "" {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil || !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatAmount renders an amount with two decimals for display.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// IsSettled reports whether d is within Tolerance of zero.
func IsSettled(d decimal.Decimal) bool {
	return d.Abs().LessThanOrEqual(tolerance)
}

// Package core provides amount parsing and formatting utilities.
//
// Balances are computed on float64 values; this file converts between the
// user-facing decimal strings and those values without intermediate rounding.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is the display currency code used when none is configured.
const DefaultCurrency = "PKR"

// ParseAmount converts a decimal string to a positive amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators.
// Signs, zero and anything that is not a plain decimal number are rejected
// with ErrInvalidAmount.
//
// Examples:
//   ParseAmount("12.34") -> 12.34, nil
//   ParseAmount("12,5")  -> 12.5, nil
//   ParseAmount("-1")    -> 0, ErrInvalidAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	if strings.ContainsAny(s, "eE") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	v, _ := d.Float64()
	return v, nil
}

// RoundAmount rounds v half away from zero to two decimal places.
// Used for display only; the settlement math never rounds.
func RoundAmount(v float64) float64 {
	r, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return r
}

// FormatAmount renders v with two decimals prefixed by the currency code,
// e.g. FormatAmount(30, "PKR") -> "PKR 30.00".
func FormatAmount(v float64, currency string) string {
	if currency == "" {
		currency = DefaultCurrency
	}
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsNegative() {
		return "-" + currency + " " + d.Neg().StringFixed(2)
	}
	return currency + " " + d.StringFixed(2)
}

// Package types provides common type aliases and utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors.
type Money = decimal.Decimal

// NewMoney creates a Money value from a float.
// WARNING: Use NewMoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// RoundMoney rounds to the given number of decimal places using
// round-half-away-from-zero (decimal.Round semantics). All monetary
// computation chains round as late as possible and always through here,
// so the rounding mode stays in one place.
func RoundMoney(m Money, places int32) Money {
	return m.Round(places)
}

// MoneyPtr returns a pointer to m. Optional monetary fields (compare-at
// price, cost price) are pointers: absence signals "unknown", not "free".
func MoneyPtr(m Money) *Money {
	return &m
}

// Package currency defines the supported monetary units.
//
// All authoritative prices are stored in the home unit (USD). The two
// foreign units are derived via exchange rates; JPY is the zero-decimal
// unit, so its presentation rounding differs from its computation rounding.
// The set is fixed but nothing below assumes exactly three units.
package currency

import (
	"strings"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
)

// Code is an ISO 4217 alphabetic currency code.
type Code string

const (
	USD Code = "USD"
	EUR Code = "EUR"
	JPY Code = "JPY"

	// Home is the unit all authoritative prices are stored in.
	Home = USD
)

// Unit describes presentation and rounding conventions for one currency.
type Unit struct {
	Code          Code
	Symbol        string
	DecimalPlaces int32
}

// units is the supported set, home unit first.
var units = map[Code]Unit{
	USD: {Code: USD, Symbol: "$", DecimalPlaces: 2},
	EUR: {Code: EUR, Symbol: "€", DecimalPlaces: 2},
	JPY: {Code: JPY, Symbol: "¥", DecimalPlaces: 0},
}

// Foreign returns the supported non-home codes in stable order.
func Foreign() []Code {
	return []Code{EUR, JPY}
}

// All returns every supported code, home first.
func All() []Code {
	return []Code{USD, EUR, JPY}
}

// Get returns the unit definition for a code.
func Get(code Code) (Unit, bool) {
	u, ok := units[code]
	return u, ok
}

// IsSupported reports whether code is a known unit.
func IsSupported(code Code) bool {
	_, ok := units[code]
	return ok
}

// Parse validates a caller-supplied code strictly: trimmed and case-folded,
// but an unknown code is an error. Used where the caller asked for a
// specific currency (conversion endpoint).
func Parse(raw string) (Code, error) {
	code := Code(strings.ToUpper(strings.TrimSpace(raw)))
	if !IsSupported(code) {
		return "", apperror.NewCurrencyNotSupported(string(code))
	}
	return code, nil
}

// Normalize is the lenient variant: trimmed, case-folded, and unknown or
// empty codes fall back to the home unit. Used by the cart engine, where a
// bad stored code must not fail a preview.
func Normalize(raw string) Code {
	code := Code(strings.ToUpper(strings.TrimSpace(raw)))
	if !IsSupported(code) {
		return Home
	}
	return code
}

// DecimalPlaces returns the presentation decimal count for a code.
// Computation always uses 2 places regardless; this matters only at
// formatting time.
func DecimalPlaces(code Code) int32 {
	if u, ok := units[code]; ok {
		return u.DecimalPlaces
	}
	return 2
}

// Format renders an amount with the unit's symbol and decimal convention.
// This is the only place presentation rounding (0 decimals for JPY) happens.
func Format(amount decimal.Decimal, code Code) string {
	u, ok := units[code]
	if !ok {
		return amount.StringFixed(2)
	}
	return u.Symbol + amount.Round(u.DecimalPlaces).StringFixed(u.DecimalPlaces)
}

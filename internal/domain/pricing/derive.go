// Package pricing derives denormalized per-currency price fields from a
// record's home-currency prices and a rate snapshot. Pure arithmetic: no
// I/O, no hidden state, same input always yields the same output.
package pricing

import (
	"github.com/shopspring/decimal"

	"mercatus/internal/core/currency"
	"mercatus/internal/domain/rates"
)

// HomePricing is the authoritative home-currency side of a monetary record.
// Nil fields mean "unknown", never "free".
type HomePricing struct {
	Base      *decimal.Decimal
	CompareAt *decimal.Decimal
	Cost      *decimal.Decimal
}

// HasAny reports whether any home-currency price exists at all.
func (h HomePricing) HasAny() bool {
	return h.Base != nil || h.CompareAt != nil || h.Cost != nil
}

// PriceSet is the derived per-currency mirror of HomePricing.
type PriceSet struct {
	Base      *decimal.Decimal `json:"base,omitempty"`
	CompareAt *decimal.Decimal `json:"compareAt,omitempty"`
	Cost      *decimal.Decimal `json:"cost,omitempty"`
}

// Derived carries the result of one derivation: the per-currency fields and
// the rate-version stamp identifying which snapshot produced them.
type Derived struct {
	PerCurrency map[currency.Code]PriceSet
	RateVersion string
}

// Derive computes the denormalized per-currency fields for every supported
// foreign currency. A record with no home pricing yields a nil map — the
// caller still stamps the rate version so "no pricing" records count as
// synced. Absent fields stay absent in the output.
func Derive(home HomePricing, snap *rates.Snapshot) Derived {
	out := Derived{RateVersion: snap.Version()}
	if !home.HasAny() {
		return out
	}

	out.PerCurrency = make(map[currency.Code]PriceSet, len(currency.Foreign()))
	for _, code := range currency.Foreign() {
		rate, ok := snap.Rate(code)
		if !ok {
			continue
		}
		places := currency.DecimalPlaces(code)
		out.PerCurrency[code] = PriceSet{
			Base:      deriveField(home.Base, rate, places),
			CompareAt: deriveField(home.CompareAt, rate, places),
			Cost:      deriveField(home.Cost, rate, places),
		}
	}
	return out
}

func deriveField(homePrice *decimal.Decimal, rate decimal.Decimal, places int32) *decimal.Decimal {
	if homePrice == nil {
		return nil
	}
	v := homePrice.Mul(rate).Round(places)
	return &v
}

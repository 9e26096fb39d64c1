// Package merchant provides account-tier discounts: a percentage knocked
// off the unit final price after promotions, aggregated separately from
// promotion and coupon discounts for reporting.
package merchant

import (
	"context"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/entity"
)

// Tier maps an account classification to its percentage discount.
type Tier struct {
	entity.Catalog

	// AccountType is the classification key ("retail", "wholesale", ...).
	AccountType string `db:"account_type" json:"accountType"`

	// DiscountPercent is applied last in line pricing, 0-100.
	DiscountPercent decimal.Decimal `db:"discount_percent" json:"discountPercent"`
}

// TierProvider resolves the discount for an account type. Looked up once
// per preview call, not per line.
type TierProvider interface {
	// DiscountPercent returns the tier percentage for accountType, zero
	// when the type has no configured tier.
	DiscountPercent(ctx context.Context, accountType string) (decimal.Decimal, error)
}

// Package coupon provides coupon rules and their discount arithmetic.
// The cart engine stacks coupons cumulatively: each coupon sees the
// subtotal remaining after the ones before it.
package coupon

import (
	"context"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/entity"
	"mercatus/internal/core/types"
)

// DiscountType enumerates the supported coupon strategies.
type DiscountType string

const (
	// DiscountPercentage reduces the remaining subtotal by Value percent.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed subtracts a fixed home-currency amount.
	DiscountFixed DiscountType = "fixed"
)

// Rule defines one coupon's discount behaviour.
type Rule struct {
	entity.Catalog

	DiscountType DiscountType    `db:"discount_type" json:"discountType"`
	Value        decimal.Decimal `db:"value" json:"value"`

	// MaxDiscount caps the computed discount when positive.
	MaxDiscount decimal.Decimal `db:"max_discount" json:"maxDiscount"`

	Active bool `db:"active" json:"active"`
}

// Validate implements entity.Validatable interface.
func (r *Rule) Validate(ctx context.Context) error {
	if err := r.Catalog.Validate(ctx); err != nil {
		return err
	}
	switch r.DiscountType {
	case DiscountPercentage:
		if r.Value.IsNegative() || r.Value.GreaterThan(decimal.NewFromInt(100)) {
			return apperror.NewValidation("percentage must be between 0 and 100").
				WithDetail("value", r.Value.String())
		}
	case DiscountFixed:
		if r.Value.IsNegative() {
			return apperror.NewValidation("fixed discount cannot be negative").
				WithDetail("value", r.Value.String())
		}
	default:
		return apperror.NewValidation("unknown discount type").
			WithDetail("discountType", string(r.DiscountType))
	}
	return nil
}

// Apply computes the discount against the remaining subtotal (home
// currency). The result never exceeds remaining: discounts cannot drive a
// subtotal negative.
func (r *Rule) Apply(remaining decimal.Decimal) decimal.Decimal {
	if !remaining.IsPositive() {
		return decimal.Zero
	}

	var discount decimal.Decimal
	switch r.DiscountType {
	case DiscountPercentage:
		discount = types.RoundMoney(remaining.Mul(r.Value).Div(decimal.NewFromInt(100)), 2)
	case DiscountFixed:
		discount = r.Value
	default:
		return decimal.Zero
	}

	if r.MaxDiscount.IsPositive() && discount.GreaterThan(r.MaxDiscount) {
		discount = r.MaxDiscount
	}
	if discount.GreaterThan(remaining) {
		discount = remaining
	}
	return discount
}

// Resolver looks up coupon rules by code. The cart engine degrades a line
// of unknown codes instead of failing the preview.
type Resolver interface {
	// FindByCode returns the active rule for code, or apperror.CodeNotFound.
	FindByCode(ctx context.Context, code string) (*Rule, error)
}

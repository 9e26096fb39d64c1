// Package promotion provides the optional promotions collaborator for the
// cart pricing engine. The engine treats it as a capability: a nil
// Previewer is a valid configuration and previews simply run without
// promotion pricing.
package promotion

import (
	"context"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/entity"
	"mercatus/internal/core/id"
)

// Action determines how a matching rule reprices a line.
type Action string

const (
	// ActionPercentOff reduces the unit base price by Value percent.
	ActionPercentOff Action = "percent_off"
	// ActionFixedPrice sets the unit final price to Value (home currency).
	ActionFixedPrice Action = "fixed_price"
)

// Rule is a promotion rule scoped to a variant. Eligibility is a CEL
// expression over the preview request: `qty`, `account_type`, `currency`.
type Rule struct {
	entity.Catalog

	VariantID  id.ID           `db:"variant_id" json:"variantId"`
	Expression string          `db:"expression" json:"expression"`
	Action     Action          `db:"action" json:"action"`
	Value      decimal.Decimal `db:"value" json:"value"`
	Priority   int             `db:"priority" json:"priority"`
	Active     bool            `db:"active" json:"active"`
}

// Validate implements entity.Validatable interface.
func (r *Rule) Validate(ctx context.Context) error {
	if err := r.Catalog.Validate(ctx); err != nil {
		return err
	}
	if r.Action != ActionPercentOff && r.Action != ActionFixedPrice {
		return apperror.NewValidation("unknown promotion action").
			WithDetail("action", string(r.Action))
	}
	if r.Action == ActionPercentOff && (r.Value.IsNegative() || r.Value.GreaterThan(decimal.NewFromInt(100))) {
		return apperror.NewValidation("percent off must be between 0 and 100").
			WithDetail("value", r.Value.String())
	}
	if r.Action == ActionFixedPrice && r.Value.IsNegative() {
		return apperror.NewValidation("fixed price cannot be negative").
			WithDetail("value", r.Value.String())
	}
	return nil
}

// PreviewRequest is one line's promotion lookup.
type PreviewRequest struct {
	VariantID   id.ID
	Currency    currency.Code
	Qty         int
	AccountType string

	// UnitBase is the line's promotion-free unit price in Currency.
	UnitBase decimal.Decimal
}

// RuleResult is a matched rule applied to a line.
type RuleResult struct {
	RuleCode  string
	UnitBase  decimal.Decimal
	UnitFinal decimal.Decimal
}

// Previewer is the capability interface consumed by the cart engine.
type Previewer interface {
	// Preview returns the applied rule for a line, or nil when no rule
	// matches.
	Preview(ctx context.Context, req PreviewRequest) (*RuleResult, error)
}

// Repository provides rule lookup.
type Repository interface {
	// ActiveForVariant returns active rules for a variant ordered by
	// priority descending.
	ActiveForVariant(ctx context.Context, variantID id.ID) ([]*Rule, error)
}

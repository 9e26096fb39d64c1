package coupon

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"mercatus/internal/core/entity"
)

func pct(code, value string) *Rule {
	return &Rule{
		Catalog:      entity.NewCatalog(code, code),
		DiscountType: DiscountPercentage,
		Value:        decimal.RequireFromString(value),
		Active:       true,
	}
}

func fixed(code, value string) *Rule {
	return &Rule{
		Catalog:      entity.NewCatalog(code, code),
		DiscountType: DiscountFixed,
		Value:        decimal.RequireFromString(value),
		Active:       true,
	}
}

func TestApplyCumulativeStacking(t *testing.T) {
	// Two 10% coupons on 100: 10 then 9, not 10 twice.
	remaining := decimal.NewFromInt(100)

	first := pct("TEN-A", "10").Apply(remaining)
	assert.True(t, first.Equal(decimal.NewFromInt(10)), "got %s", first)
	remaining = remaining.Sub(first)

	second := pct("TEN-B", "10").Apply(remaining)
	assert.True(t, second.Equal(decimal.NewFromInt(9)), "got %s", second)
	remaining = remaining.Sub(second)

	assert.True(t, remaining.Equal(decimal.NewFromInt(81)), "got %s", remaining)
}

func TestApplyNeverExceedsRemaining(t *testing.T) {
	assert.True(t, fixed("BIG", "500").Apply(decimal.NewFromInt(60)).Equal(decimal.NewFromInt(60)))
	assert.True(t, fixed("BIG", "500").Apply(decimal.Zero).IsZero())
	assert.True(t, pct("ALL", "100").Apply(decimal.NewFromInt(42)).Equal(decimal.NewFromInt(42)))
}

func TestApplyMaxDiscountCap(t *testing.T) {
	r := pct("CAPPED", "50")
	r.MaxDiscount = decimal.NewFromInt(20)

	assert.True(t, r.Apply(decimal.NewFromInt(100)).Equal(decimal.NewFromInt(20)))
	assert.True(t, r.Apply(decimal.NewFromInt(30)).Equal(decimal.NewFromInt(15)), "cap not reached")
}

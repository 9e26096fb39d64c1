package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercatus/internal/core/currency"
	"mercatus/internal/core/types"
	"mercatus/internal/domain/rates"
)

func snapshot(t *testing.T) *rates.Snapshot {
	t.Helper()
	return rates.NewSnapshot(map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.92"),
		currency.JPY: decimal.RequireFromString("147"),
	}, "tester", "")
}

func TestDerivePerCurrencyRounding(t *testing.T) {
	snap := snapshot(t)
	home := HomePricing{
		Base:      types.MoneyPtr(decimal.RequireFromString("19.99")),
		CompareAt: types.MoneyPtr(decimal.RequireFromString("24.99")),
	}

	d := Derive(home, snap)
	require.Equal(t, snap.Version(), d.RateVersion)
	require.Len(t, d.PerCurrency, 2)

	eur := d.PerCurrency[currency.EUR]
	require.NotNil(t, eur.Base)
	assert.True(t, eur.Base.Equal(decimal.RequireFromString("18.39")), "19.99*0.92=18.3908 rounds to 18.39, got %s", eur.Base)
	require.NotNil(t, eur.CompareAt)
	assert.True(t, eur.CompareAt.Equal(decimal.RequireFromString("22.99")), "got %s", eur.CompareAt)
	assert.Nil(t, eur.Cost, "absent home field stays absent")

	// Zero-decimal unit rounds to whole units, half away from zero.
	jpy := d.PerCurrency[currency.JPY]
	require.NotNil(t, jpy.Base)
	assert.True(t, jpy.Base.Equal(decimal.RequireFromString("2939")), "19.99*147=2938.53 rounds to 2939, got %s", jpy.Base)
}

func TestDeriveNoHomePricing(t *testing.T) {
	d := Derive(HomePricing{}, snapshot(t))
	assert.Nil(t, d.PerCurrency, "no pricing yields no derived fields, not zeros")
	assert.NotEmpty(t, d.RateVersion, "version still stamped so the record counts as synced")
}

func TestDeriveIsIdempotent(t *testing.T) {
	snap := snapshot(t)
	home := HomePricing{
		Base: types.MoneyPtr(decimal.RequireFromString("107.77")),
		Cost: types.MoneyPtr(decimal.RequireFromString("63.10")),
	}

	first := Derive(home, snap)
	second := Derive(home, snap)

	require.Equal(t, first.RateVersion, second.RateVersion)
	for _, code := range currency.Foreign() {
		a, b := first.PerCurrency[code], second.PerCurrency[code]
		assert.True(t, a.Base.Equal(*b.Base))
		assert.True(t, a.Cost.Equal(*b.Cost))
		assert.Nil(t, a.CompareAt)
		assert.Nil(t, b.CompareAt)
	}
}

package cart

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/id"
	"mercatus/internal/core/types"
	"mercatus/internal/domain/catalog/product"
	"mercatus/internal/domain/coupon"
	"mercatus/internal/domain/promotion"
	"mercatus/internal/domain/rates"
)

type memCatalog struct {
	products map[id.ID]*product.Product
	variants map[id.ID]*product.Variant
}

func newMemCatalog() *memCatalog {
	return &memCatalog{
		products: make(map[id.ID]*product.Product),
		variants: make(map[id.ID]*product.Variant),
	}
}

func (m *memCatalog) GetByID(_ context.Context, productID id.ID) (*product.Product, error) {
	p, ok := m.products[productID]
	if !ok {
		return nil, apperror.NewNotFound("product", productID.String())
	}
	return p, nil
}

func (m *memCatalog) GetVariant(_ context.Context, variantID id.ID) (*product.Variant, error) {
	v, ok := m.variants[variantID]
	if !ok {
		return nil, apperror.NewNotFound("variant", variantID.String())
	}
	return v, nil
}

// fixedConverter pivots through the home currency over a fixed rate table,
// rounding results to 2 decimal places like the live conversion service.
type fixedConverter struct {
	homeToForeign map[currency.Code]decimal.Decimal
}

func newFixedConverter() *fixedConverter {
	return &fixedConverter{homeToForeign: map[currency.Code]decimal.Decimal{
		currency.EUR: decimal.RequireFromString("0.92"),
		currency.JPY: decimal.NewFromInt(147),
	}}
}

func (c *fixedConverter) rate(code currency.Code) decimal.Decimal {
	if code == currency.Home {
		return decimal.NewFromInt(1)
	}
	return c.homeToForeign[code]
}

func (c *fixedConverter) ConvertAmount(_ context.Context, amount decimal.Decimal, from, to currency.Code) (decimal.Decimal, error) {
	if from == to {
		return types.RoundMoney(amount, 2), nil
	}
	home := amount.Div(c.rate(from))
	return types.RoundMoney(home.Mul(c.rate(to)), 2), nil
}

func (c *fixedConverter) TotalsInAllCurrencies(ctx context.Context, subtotal, shipping, tax, discount decimal.Decimal) (map[currency.Code]rates.Totals, error) {
	out := make(map[currency.Code]rates.Totals, len(currency.All()))
	for _, code := range currency.All() {
		sub, _ := c.ConvertAmount(ctx, subtotal, currency.Home, code)
		ship, _ := c.ConvertAmount(ctx, shipping, currency.Home, code)
		tx, _ := c.ConvertAmount(ctx, tax, currency.Home, code)
		disc, _ := c.ConvertAmount(ctx, discount, currency.Home, code)
		out[code] = rates.Totals{
			Subtotal: sub, Shipping: ship, Tax: tx, Discount: disc,
			Total: sub.Add(ship).Add(tx).Sub(disc),
		}
	}
	return out, nil
}

// rulePreviewer applies one fixed result to one variant.
type rulePreviewer struct {
	variantID id.ID
	result    promotion.RuleResult
}

func (p *rulePreviewer) Preview(_ context.Context, req promotion.PreviewRequest) (*promotion.RuleResult, error) {
	if req.VariantID != p.variantID {
		return nil, nil
	}
	r := p.result
	return &r, nil
}

type fixedTier struct {
	percent decimal.Decimal
}

func (t *fixedTier) DiscountPercent(_ context.Context, _ string) (decimal.Decimal, error) {
	return t.percent, nil
}

type memCoupons struct {
	rules map[string]*coupon.Rule
}

func (m *memCoupons) FindByCode(_ context.Context, code string) (*coupon.Rule, error) {
	r, ok := m.rules[code]
	if !ok {
		return nil, apperror.NewNotFound("coupon", code)
	}
	return r, nil
}

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func seedProduct(catalog *memCatalog, base string) *product.Product {
	p := product.NewProduct("P-"+base, "test product")
	p.BasePriceHome = money(base)
	catalog.products[p.ID] = p
	return p
}

func seedVariant(catalog *memCatalog, p *product.Product, base string) *product.Variant {
	v := product.NewVariant(p.ID, "test variant")
	v.BasePriceHome = money(base)
	catalog.variants[v.ID] = v
	return v
}

func TestPreviewMerchantTierAppliesAfterPromotion(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "100")
	v := seedVariant(catalog, p, "100")

	promo := &rulePreviewer{
		variantID: v.ID,
		result: promotion.RuleResult{
			RuleCode:  "LAUNCH20",
			UnitBase:  decimal.NewFromInt(100),
			UnitFinal: decimal.NewFromInt(80),
		},
	}
	engine := NewEngine(catalog, newFixedConverter(), promo, &fixedTier{percent: decimal.NewFromInt(10)}, nil)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, &v.ID, 1)

	preview, err := engine.Preview(ctx, c, "USD", "wholesale")
	require.NoError(t, err)
	require.Len(t, preview.Items, 1)

	line := preview.Items[0]
	assert.Equal(t, "LAUNCH20", line.AppliedRule)
	assert.True(t, line.UnitFinalPrice.Equal(decimal.NewFromInt(72)), "got %s", line.UnitFinalPrice)
	assert.True(t, preview.Summary.PromotionDiscount.Equal(decimal.NewFromInt(20)))
	assert.True(t, preview.Summary.MerchantDiscount.Equal(decimal.NewFromInt(8)))
	assert.True(t, preview.Summary.Total.Equal(decimal.NewFromInt(72)))
}

func TestPreviewCouponsStackCumulatively(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "100")

	ten := coupon.Rule{DiscountType: coupon.DiscountPercentage, Value: decimal.NewFromInt(10), Active: true}
	first, second := ten, ten
	first.Code, second.Code = "TEN-A", "TEN-B"
	coupons := &memCoupons{rules: map[string]*coupon.Rule{
		"TEN-A": &first,
		"TEN-B": &second,
	}}
	engine := NewEngine(catalog, newFixedConverter(), nil, nil, coupons)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, nil, 1)
	c.CouponCodes = []string{"TEN-A", "TEN-B"}

	preview, err := engine.Preview(ctx, c, "USD", "")
	require.NoError(t, err)

	// 100 -> -10 -> -9: the second coupon sees the reduced subtotal.
	require.Len(t, preview.Coupons, 2)
	assert.True(t, preview.Coupons[0].Discount.Equal(decimal.NewFromInt(10)))
	assert.True(t, preview.Coupons[1].Discount.Equal(decimal.NewFromInt(9)))
	assert.True(t, preview.Summary.CouponDiscount.Equal(decimal.NewFromInt(19)))
	assert.True(t, preview.Summary.Total.Equal(decimal.NewFromInt(81)))
}

func TestPreviewUnknownCouponReportedUnapplied(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "50")

	engine := NewEngine(catalog, newFixedConverter(), nil, nil, &memCoupons{rules: map[string]*coupon.Rule{}})

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, nil, 1)
	c.CouponCodes = []string{"NOPE"}

	preview, err := engine.Preview(ctx, c, "USD", "")
	require.NoError(t, err)
	require.Len(t, preview.Coupons, 1)
	assert.False(t, preview.Coupons[0].Applied)
	assert.True(t, preview.Summary.Total.Equal(decimal.NewFromInt(50)))
}

func TestPreviewUnresolvableLineKeptOutOfTotals(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "20")

	engine := NewEngine(catalog, newFixedConverter(), nil, nil, nil)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, nil, 2)
	c.SetItemQty(id.New(), nil, 1) // never seeded

	preview, err := engine.Preview(ctx, c, "USD", "")
	require.NoError(t, err)
	require.Len(t, preview.Items, 2)

	var unavailable int
	for _, line := range preview.Items {
		if line.Unavailable {
			unavailable++
		}
	}
	assert.Equal(t, 1, unavailable)
	assert.True(t, preview.Summary.Subtotal.Equal(decimal.NewFromInt(40)), "got %s", preview.Summary.Subtotal)
}

func TestPreviewVariantPricePreferredOverProduct(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "100")
	v := seedVariant(catalog, p, "85")

	engine := NewEngine(catalog, newFixedConverter(), nil, nil, nil)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, &v.ID, 1)

	preview, err := engine.Preview(ctx, c, "USD", "")
	require.NoError(t, err)
	require.Len(t, preview.Items, 1)
	assert.True(t, preview.Items[0].UnitBasePrice.Equal(decimal.NewFromInt(85)))
}

func TestPreviewVariantWithoutPriceFallsBackToProduct(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "100")
	v := product.NewVariant(p.ID, "unpriced")
	catalog.variants[v.ID] = v

	engine := NewEngine(catalog, newFixedConverter(), nil, nil, nil)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, &v.ID, 1)

	preview, err := engine.Preview(ctx, c, "USD", "")
	require.NoError(t, err)
	require.Len(t, preview.Items, 1)
	assert.True(t, preview.Items[0].UnitBasePrice.Equal(decimal.NewFromInt(100)))
}

func TestPreviewStaleCachedPricingRecomputed(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "30")

	engine := NewEngine(catalog, newFixedConverter(), nil, nil, nil)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, nil, 1)
	c.Items[0].Pricing = &CachedPricing{
		UnitBase:  money("0"), // non-positive: must be recomputed
		UnitFinal: money("25"),
		Currency:  "USD",
	}

	preview, err := engine.Preview(ctx, c, "EUR", "")
	require.NoError(t, err)
	require.Len(t, preview.Items, 1)
	assert.True(t, preview.Items[0].UnitBasePrice.Equal(decimal.RequireFromString("27.60")), "got %s", preview.Items[0].UnitBasePrice)

	// The cache is refreshed in the currency just priced in.
	require.NotNil(t, c.Items[0].Pricing)
	assert.Equal(t, "EUR", c.Items[0].Pricing.Currency)
	assert.True(t, c.Items[0].Pricing.UnitBase.Equal(decimal.RequireFromString("27.60")))
}

func TestPreviewFreshCachedPricingConvertedToTarget(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "999") // catalog price must not win over a fresh cache

	engine := NewEngine(catalog, newFixedConverter(), nil, nil, nil)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, nil, 1)
	c.Items[0].Pricing = &CachedPricing{
		UnitBase:  money("92"),
		UnitFinal: money("92"),
		Currency:  "EUR",
	}

	preview, err := engine.Preview(ctx, c, "JPY", "")
	require.NoError(t, err)
	require.Len(t, preview.Items, 1)
	assert.True(t, preview.Items[0].UnitBasePrice.Equal(decimal.NewFromInt(14700)), "got %s", preview.Items[0].UnitBasePrice)
}

func TestPreviewSummaryByCurrencyCoversSupportedSet(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "100")

	engine := NewEngine(catalog, newFixedConverter(), nil, nil, nil)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, nil, 1)

	preview, err := engine.Preview(ctx, c, "USD", "")
	require.NoError(t, err)
	require.Len(t, preview.SummaryByCurrency, len(currency.All()))
	assert.True(t, preview.SummaryByCurrency[currency.EUR].Total.Equal(decimal.NewFromInt(92)))
	assert.True(t, preview.SummaryByCurrency[currency.JPY].Total.Equal(decimal.NewFromInt(14700)))
}

func TestPreviewUnknownCurrencyDefaultsToHome(t *testing.T) {
	ctx := context.Background()
	catalog := newMemCatalog()
	p := seedProduct(catalog, "100")

	engine := NewEngine(catalog, newFixedConverter(), nil, nil, nil)

	c := NewCart("acct-1")
	c.SetItemQty(p.ID, nil, 1)

	preview, err := engine.Preview(ctx, c, "GBP", "")
	require.NoError(t, err)
	require.Len(t, preview.Items, 1)
	assert.Equal(t, currency.Home, preview.Items[0].Currency)
	assert.True(t, preview.Items[0].LineTotal.Equal(decimal.NewFromInt(100)))
	assert.True(t, preview.Summary.Subtotal.Equal(decimal.NewFromInt(100)))
}

func TestSetItemQtyZeroRemovesLine(t *testing.T) {
	c := NewCart("acct-1")
	productID := id.New()
	c.SetItemQty(productID, nil, 2)
	require.Len(t, c.Items, 1)

	c.SetItemQty(productID, nil, 0)
	assert.Empty(t, c.Items)

	// Removing an absent line is a no-op.
	c.SetItemQty(id.New(), nil, -1)
	assert.Empty(t, c.Items)
}

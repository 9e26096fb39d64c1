package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/id"
	"mercatus/internal/core/types"
	"mercatus/internal/domain/catalog/product"
	"mercatus/internal/domain/coupon"
	"mercatus/internal/domain/merchant"
	"mercatus/internal/domain/promotion"
	"mercatus/internal/domain/rates"
	"mercatus/pkg/logger"
)

var hundred = decimal.NewFromInt(100)

// CatalogSource is the subset of the product repository the engine reads.
type CatalogSource interface {
	GetByID(ctx context.Context, productID id.ID) (*product.Product, error)
	GetVariant(ctx context.Context, variantID id.ID) (*product.Variant, error)
}

// Converter is the conversion surface the engine depends on.
// *rates.Service satisfies it.
type Converter interface {
	ConvertAmount(ctx context.Context, amount decimal.Decimal, from, to currency.Code) (decimal.Decimal, error)
	TotalsInAllCurrencies(ctx context.Context, subtotal, shipping, tax, discount decimal.Decimal) (map[currency.Code]rates.Totals, error)
}

// Engine prices a cart on demand. Promotions, merchant tiers and coupons
// are optional collaborators: a nil field disables that pricing source
// without changing anything else.
type Engine struct {
	catalog    CatalogSource
	converter  Converter
	promotions promotion.Previewer
	tiers      merchant.TierProvider
	coupons    coupon.Resolver
}

// NewEngine creates a pricing engine. catalog and converter are required;
// promotions, tiers and coupons may be nil.
func NewEngine(
	catalog CatalogSource,
	converter Converter,
	promotions promotion.Previewer,
	tiers merchant.TierProvider,
	coupons coupon.Resolver,
) *Engine {
	return &Engine{
		catalog:    catalog,
		converter:  converter,
		promotions: promotions,
		tiers:      tiers,
		coupons:    coupons,
	}
}

// Preview prices every line of the cart in the target currency and returns
// the full per-line and aggregate breakdown. The cart itself is not
// persisted; per-item cached pricing is refreshed in place so the caller
// can save it opportunistically.
//
// Accumulation runs in the home currency: each line total is converted to
// the home unit before summing, so one basis feeds both the home summary
// and the per-currency re-expressions.
func (e *Engine) Preview(ctx context.Context, c *Cart, targetRaw, accountType string) (*Preview, error) {
	// Unknown display currencies fall back to the home currency; only the
	// explicit conversion endpoint rejects them.
	target := currency.Normalize(targetRaw)

	// One tier lookup per preview, applied to every priced line.
	tierPercent := decimal.Zero
	if e.tiers != nil && accountType != "" {
		percent, err := e.tiers.DiscountPercent(ctx, accountType)
		if err != nil {
			return nil, err
		}
		tierPercent = percent
	}

	preview := &Preview{
		Items: make([]LinePreview, 0, len(c.Items)),
	}

	subtotalHome := decimal.Zero
	beforeDiscountHome := decimal.Zero
	promotionHome := decimal.Zero
	merchantHome := decimal.Zero

	for _, item := range c.Items {
		if item.Qty <= 0 {
			continue
		}

		line, linePrices, lineErr := e.priceLine(ctx, item, target, accountType, tierPercent)
		if lineErr != nil {
			return nil, lineErr
		}
		preview.Items = append(preview.Items, *line)
		if line.Unavailable {
			continue
		}

		qty := decimal.NewFromInt(int64(item.Qty))
		lineBefore := types.RoundMoney(line.UnitBasePrice.Mul(qty), 2)

		lineTotalHome, err := e.converter.ConvertAmount(ctx, line.LineTotal, target, currency.Home)
		if err != nil {
			return nil, err
		}
		lineBeforeHome, err := e.converter.ConvertAmount(ctx, lineBefore, target, currency.Home)
		if err != nil {
			return nil, err
		}
		subtotalHome = subtotalHome.Add(lineTotalHome)
		beforeDiscountHome = beforeDiscountHome.Add(lineBeforeHome)

		promoUnit := line.UnitBasePrice.Sub(linePrices.afterPromotion)
		if promoUnit.IsPositive() {
			promoHome, err := e.converter.ConvertAmount(ctx, types.RoundMoney(promoUnit.Mul(qty), 2), target, currency.Home)
			if err != nil {
				return nil, err
			}
			promotionHome = promotionHome.Add(promoHome)
		}
		tierUnit := linePrices.afterPromotion.Sub(line.UnitFinalPrice)
		if tierUnit.IsPositive() {
			tierHome, err := e.converter.ConvertAmount(ctx, types.RoundMoney(tierUnit.Mul(qty), 2), target, currency.Home)
			if err != nil {
				return nil, err
			}
			merchantHome = merchantHome.Add(tierHome)
		}
	}

	couponHome, applied := e.applyCoupons(ctx, c.CouponCodes, subtotalHome)
	preview.Coupons = applied

	preview.Summary = PricingSummary{
		Currency:               currency.Home,
		Subtotal:               subtotalHome,
		SubtotalBeforeDiscount: beforeDiscountHome,
		PromotionDiscount:      promotionHome,
		MerchantDiscount:       merchantHome,
		CouponDiscount:         couponHome,
		Total:                  subtotalHome.Sub(couponHome),
	}

	byCurrency, err := e.converter.TotalsInAllCurrencies(ctx, subtotalHome, decimal.Zero, decimal.Zero, couponHome)
	if err != nil {
		return nil, err
	}
	preview.SummaryByCurrency = byCurrency

	return preview, nil
}

// linePrices tracks the intermediate unit prices of one line so discount
// contributions can be attributed to their source.
type linePrices struct {
	afterPromotion decimal.Decimal
}

// priceLine resolves and prices one cart line. Resolution failures are not
// errors: the line comes back flagged Unavailable so the storefront can
// surface it while totals skip it.
func (e *Engine) priceLine(ctx context.Context, item *Item, target currency.Code, accountType string, tierPercent decimal.Decimal) (*LinePreview, linePrices, error) {
	line := &LinePreview{
		ItemID:    item.ID,
		ProductID: item.ProductID,
		VariantID: item.VariantID,
		Qty:       item.Qty,
		Currency:  target,
	}

	homeBase, resolvedVariant, err := e.resolveHomeBase(ctx, item)
	if err != nil {
		return nil, linePrices{}, err
	}
	if homeBase == nil {
		line.Unavailable = true
		return line, linePrices{}, nil
	}

	// Cached pricing is reused only when the values are sound; otherwise
	// recompute from the home base price.
	unitBase := decimal.Zero
	unitFinal := decimal.Zero
	cached := item.Pricing
	if !cached.Stale() {
		cachedCode, cErr := currency.Parse(cached.Currency)
		if cErr != nil {
			cached = nil
		} else if cachedCode == target {
			unitBase = *cached.UnitBase
			unitFinal = *cached.UnitFinal
		} else {
			unitBase, err = e.converter.ConvertAmount(ctx, *cached.UnitBase, cachedCode, target)
			if err != nil {
				return nil, linePrices{}, err
			}
			unitFinal, err = e.converter.ConvertAmount(ctx, *cached.UnitFinal, cachedCode, target)
			if err != nil {
				return nil, linePrices{}, err
			}
		}
	}
	if cached.Stale() {
		unitBase, err = e.converter.ConvertAmount(ctx, *homeBase, currency.Home, target)
		if err != nil {
			return nil, linePrices{}, err
		}
		unitFinal = unitBase
	}

	line.UnitBasePrice = unitBase

	// Promotions override the recomputed price for variant lines; a rule
	// match replaces both base and final.
	if e.promotions != nil && resolvedVariant != nil {
		result, pErr := e.promotions.Preview(ctx, promotion.PreviewRequest{
			VariantID:   resolvedVariant.ID,
			Currency:    target,
			Qty:         item.Qty,
			AccountType: accountType,
			UnitBase:    unitBase,
		})
		if pErr != nil {
			return nil, linePrices{}, pErr
		}
		if result != nil {
			line.UnitBasePrice = result.UnitBase
			unitFinal = result.UnitFinal
			line.AppliedRule = result.RuleCode
		}
	}

	prices := linePrices{afterPromotion: unitFinal}

	// Merchant tier applies after promotions, on the promoted price.
	if tierPercent.IsPositive() {
		unitFinal = types.RoundMoney(unitFinal.Mul(hundred.Sub(tierPercent)).Div(hundred), 2)
	}

	line.UnitFinalPrice = unitFinal
	line.LineTotal = types.RoundMoney(unitFinal.Mul(decimal.NewFromInt(int64(item.Qty))), 2)

	// Refresh the opportunistic cache in the currency we just priced in.
	base := line.UnitBasePrice
	final := line.UnitFinalPrice
	item.Pricing = &CachedPricing{
		UnitBase:  &base,
		UnitFinal: &final,
		Currency:  string(target),
	}

	return line, prices, nil
}

// resolveHomeBase finds the home-currency base price for a line, preferring
// variant pricing over product pricing. A nil result (with nil error) marks
// the line unresolvable.
func (e *Engine) resolveHomeBase(ctx context.Context, item *Item) (*decimal.Decimal, *product.Variant, error) {
	var variant *product.Variant
	if item.VariantID != nil {
		v, err := e.catalog.GetVariant(ctx, *item.VariantID)
		switch {
		case err == nil:
			variant = v
		case apperror.IsNotFound(err):
			// fall through to the product lookup
		default:
			return nil, nil, err
		}
	}
	if variant != nil && variant.BasePriceHome != nil {
		return variant.BasePriceHome, variant, nil
	}

	p, err := e.catalog.GetByID(ctx, item.ProductID)
	switch {
	case err == nil:
		if p.BasePriceHome != nil {
			return p.BasePriceHome, variant, nil
		}
		return nil, variant, nil
	case apperror.IsNotFound(err):
		return nil, variant, nil
	default:
		return nil, nil, err
	}
}

// applyCoupons stacks coupon codes cumulatively: each rule sees the
// subtotal already reduced by the coupons before it, and the combined
// discount can never exceed the subtotal. Unknown or inactive codes are
// reported unapplied, not failed.
func (e *Engine) applyCoupons(ctx context.Context, codes []string, subtotal decimal.Decimal) (decimal.Decimal, []AppliedCoupon) {
	if e.coupons == nil || len(codes) == 0 {
		return decimal.Zero, nil
	}

	applied := make([]AppliedCoupon, 0, len(codes))
	remaining := subtotal
	total := decimal.Zero
	for _, code := range codes {
		rule, err := e.coupons.FindByCode(ctx, code)
		if err != nil {
			if !apperror.IsNotFound(err) {
				logger.Warn(ctx, "coupon lookup failed", "code", code, "error", err)
			}
			applied = append(applied, AppliedCoupon{Code: code, Discount: decimal.Zero})
			continue
		}
		discount := rule.Apply(remaining)
		remaining = remaining.Sub(discount)
		total = total.Add(discount)
		applied = append(applied, AppliedCoupon{Code: code, Discount: discount, Applied: true})
	}
	return total, applied
}

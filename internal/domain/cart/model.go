// Package cart provides the cart aggregate and the request-time pricing
// engine that turns it into a priced preview.
package cart

import (
	"github.com/shopspring/decimal"

	"mercatus/internal/core/currency"
	"mercatus/internal/core/entity"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/rates"
)

// Cart persists only identifiers and quantities. Prices are derived fresh
// on every preview; CachedPricing on an item is an opportunistic cache,
// always refreshable, never authoritative.
type Cart struct {
	entity.BaseDocument

	OwnerID     string   `db:"owner_id" json:"ownerId"`
	Items       []*Item  `db:"-" json:"items"`
	CouponCodes []string `db:"coupon_codes" json:"couponCodes,omitempty"`
}

// NewCart creates an empty cart for an owner.
func NewCart(ownerID string) *Cart {
	return &Cart{
		BaseDocument: entity.NewBaseDocument(),
		OwnerID:      ownerID,
	}
}

// SetItemQty upserts a line. Zero (or negative) quantity removes it.
func (c *Cart) SetItemQty(productID id.ID, variantID *id.ID, qty int) {
	for i, item := range c.Items {
		if item.Matches(productID, variantID) {
			if qty <= 0 {
				c.Items = append(c.Items[:i], c.Items[i+1:]...)
			} else {
				item.Qty = qty
			}
			return
		}
	}
	if qty <= 0 {
		return
	}
	c.Items = append(c.Items, &Item{
		ID:        id.New(),
		ProductID: productID,
		VariantID: variantID,
		Qty:       qty,
	})
}

// Item is one cart line.
type Item struct {
	ID        id.ID  `db:"id" json:"id"`
	CartID    id.ID  `db:"cart_id" json:"cartId"`
	ProductID id.ID  `db:"product_id" json:"productId"`
	VariantID *id.ID `db:"variant_id" json:"variantId,omitempty"`
	Qty       int    `db:"qty" json:"qty"`

	// Pricing is the opportunistic per-line cache. Nil is valid.
	Pricing *CachedPricing `db:"pricing" json:"pricing,omitempty"`
}

// Matches reports whether the line refers to the same product/variant pair.
func (i *Item) Matches(productID id.ID, variantID *id.ID) bool {
	if i.ProductID != productID {
		return false
	}
	if (i.VariantID == nil) != (variantID == nil) {
		return false
	}
	return i.VariantID == nil || *i.VariantID == *variantID
}

// CachedPricing is a previously computed unit price pair. Staleness is
// value-based, not TTL-based: cart items can sit idle for months, so the
// values themselves decide whether they are still usable.
type CachedPricing struct {
	UnitBase  *decimal.Decimal `json:"unitBase,omitempty"`
	UnitFinal *decimal.Decimal `json:"unitFinal,omitempty"`
	Currency  string           `json:"currency,omitempty"`
}

// Stale reports whether the cached pricing must be recomputed: any missing
// or non-positive component disqualifies the whole snapshot. (Non-finite
// floats are rejected at the decoding boundary and arrive here as nil.)
func (p *CachedPricing) Stale() bool {
	if p == nil || p.UnitBase == nil || p.UnitFinal == nil {
		return true
	}
	return !p.UnitBase.IsPositive() || !p.UnitFinal.IsPositive()
}

// LinePreview is one priced line of a preview. Unavailable lines stay in
// the list (the storefront flags them) but contribute nothing to totals.
type LinePreview struct {
	ItemID         id.ID           `json:"itemId"`
	ProductID      id.ID           `json:"productId"`
	VariantID      *id.ID          `json:"variantId,omitempty"`
	Qty            int             `json:"qty"`
	Currency       currency.Code   `json:"currency"`
	UnitBasePrice  decimal.Decimal `json:"unitBasePrice"`
	UnitFinalPrice decimal.Decimal `json:"unitFinalPrice"`
	LineTotal      decimal.Decimal `json:"lineTotal"`
	AppliedRule    string          `json:"appliedDiscountRule,omitempty"`
	Unavailable    bool            `json:"unavailable,omitempty"`
}

// AppliedCoupon reports one coupon's contribution, in application order.
type AppliedCoupon struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount"`
	Applied  bool            `json:"applied"`
}

// PricingSummary aggregates a preview in the home currency. Every line is
// converted into the home unit before accumulation so the same basis can
// be re-expressed in any currency.
type PricingSummary struct {
	Currency               currency.Code   `json:"currency"`
	Subtotal               decimal.Decimal `json:"subtotal"`
	SubtotalBeforeDiscount decimal.Decimal `json:"subtotalBeforeDiscount"`
	PromotionDiscount      decimal.Decimal `json:"promotionDiscount"`
	MerchantDiscount       decimal.Decimal `json:"merchantDiscount"`
	CouponDiscount         decimal.Decimal `json:"couponDiscount"`
	Total                  decimal.Decimal `json:"total"`
}

// Preview is the full result of one pricing pass.
type Preview struct {
	Items             []LinePreview                 `json:"items"`
	Coupons           []AppliedCoupon               `json:"coupons,omitempty"`
	Summary           PricingSummary                `json:"pricingSummary"`
	SummaryByCurrency map[currency.Code]rates.Totals `json:"pricingSummaryByCurrency"`
}

// Package product provides the Product catalog and its variants: the
// monetary records carrying authoritative home-currency prices and the
// denormalized per-currency prices maintained by the sync job.
package product

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/entity"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/pricing"
)

// MonetaryFields is embedded by Product and Variant: the home-currency
// prices plus the sync bookkeeping columns. RateVersion empty means the
// per-currency prices are stale (admin edit since last sync) and must not
// be trusted.
type MonetaryFields struct {
	BasePriceHome      *decimal.Decimal `db:"base_price_home" json:"basePriceHome,omitempty"`
	CompareAtPriceHome *decimal.Decimal `db:"compare_at_price_home" json:"compareAtPriceHome,omitempty"`
	CostPriceHome      *decimal.Decimal `db:"cost_price_home" json:"costPriceHome,omitempty"`

	PerCurrencyPrices map[currency.Code]pricing.PriceSet `db:"per_currency_prices" json:"perCurrencyPrices,omitempty"`

	// RateVersion identifies the snapshot that produced PerCurrencyPrices.
	RateVersion string `db:"rate_version" json:"rateVersion,omitempty"`

	// LastSyncedAt is when the sync job last stamped this record.
	LastSyncedAt *time.Time `db:"last_synced_at" json:"lastSyncedAt,omitempty"`
}

// HomePricing adapts the record for the derivation service.
func (m *MonetaryFields) HomePricing() pricing.HomePricing {
	return pricing.HomePricing{
		Base:      m.BasePriceHome,
		CompareAt: m.CompareAtPriceHome,
		Cost:      m.CostPriceHome,
	}
}

// MarkStale clears the rate-version stamp. Admin price edits call this so
// the next sync pass (or a fresh preview) recomputes derived prices.
func (m *MonetaryFields) MarkStale() {
	m.RateVersion = ""
}

// IsFresh reports whether the denormalized prices were produced by the
// given rate version.
func (m *MonetaryFields) IsFresh(version string) bool {
	return m.RateVersion != "" && m.RateVersion == version
}

// ApplyDerived installs derived per-currency prices and stamps the record.
func (m *MonetaryFields) ApplyDerived(d pricing.Derived, at time.Time) {
	m.PerCurrencyPrices = d.PerCurrency
	m.RateVersion = d.RateVersion
	m.LastSyncedAt = &at
}

// Product is a sellable catalog record.
type Product struct {
	entity.Catalog
	MonetaryFields

	SKU         *string `db:"sku" json:"sku,omitempty"`
	Description *string `db:"description" json:"description,omitempty"`
	Active      bool    `db:"active" json:"active"`
}

// NewProduct creates a Product with required fields.
func NewProduct(code, name string) *Product {
	return &Product{
		Catalog: entity.NewCatalog(code, name),
		Active:  true,
	}
}

// Validate implements entity.Validatable interface.
func (p *Product) Validate(ctx context.Context) error {
	if err := p.Catalog.Validate(ctx); err != nil {
		return err
	}
	if p.BasePriceHome != nil && p.BasePriceHome.IsNegative() {
		return apperror.NewValidation("base price cannot be negative").
			WithDetail("field", "basePriceHome")
	}
	return nil
}

// Variant is a purchasable variation of a product. Variant-level pricing,
// when present, takes precedence over product-level pricing.
type Variant struct {
	entity.BaseEntity
	MonetaryFields

	ProductID id.ID   `db:"product_id" json:"productId"`
	SKU       *string `db:"sku" json:"sku,omitempty"`
	Name      string  `db:"name" json:"name"`
}

// NewVariant creates a Variant for a product.
func NewVariant(productID id.ID, name string) *Variant {
	return &Variant{
		BaseEntity: entity.NewBaseEntity(),
		ProductID:  productID,
		Name:       name,
	}
}

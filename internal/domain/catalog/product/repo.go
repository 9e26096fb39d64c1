package product

import (
	"context"

	"mercatus/internal/core/id"
)

// Repository defines persistence for products and variants.
//
// ListAfter pages by id: UUIDv7 keys are time-ordered, so "ordered by id"
// is the stable monotonic cursor the sync job resumes from.
type Repository interface {
	GetByID(ctx context.Context, productID id.ID) (*Product, error)
	GetVariant(ctx context.Context, variantID id.ID) (*Variant, error)

	// ListAfter returns up to limit non-deleted products with id > after,
	// ordered by id ascending. Zero-value after starts from the beginning.
	ListAfter(ctx context.Context, after id.ID, limit int) ([]*Product, error)

	// CountActive counts non-deleted products.
	CountActive(ctx context.Context) (int, error)

	// VariantsByProduct returns all variants for a product.
	VariantsByProduct(ctx context.Context, productID id.ID) ([]*Variant, error)

	// UpdateDerivedPrices persists a product's per-currency prices and
	// sync stamp. Price columns are written only when derived fields are
	// present; the stamp is always written.
	UpdateDerivedPrices(ctx context.Context, p *Product) error

	// BulkUpsertVariantPrices persists derived prices for a product's
	// variants in one round trip.
	BulkUpsertVariantPrices(ctx context.Context, variants []*Variant) error
}

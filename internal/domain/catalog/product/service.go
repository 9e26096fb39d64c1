package product

import (
	"context"

	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/id"
)

// PriceEdit carries an admin's home-currency price update. Nil fields are
// left untouched; a present field replaces the stored value (explicit
// clearing goes through Clear*).
type PriceEdit struct {
	BasePriceHome      *decimal.Decimal
	CompareAtPriceHome *decimal.Decimal
	CostPriceHome      *decimal.Decimal

	ClearCompareAt bool
	ClearCost      bool
}

func (e PriceEdit) empty() bool {
	return e.BasePriceHome == nil && e.CompareAtPriceHome == nil && e.CostPriceHome == nil &&
		!e.ClearCompareAt && !e.ClearCost
}

func (e PriceEdit) validate() error {
	for field, v := range map[string]*decimal.Decimal{
		"basePriceHome":      e.BasePriceHome,
		"compareAtPriceHome": e.CompareAtPriceHome,
		"costPriceHome":      e.CostPriceHome,
	} {
		if v != nil && v.IsNegative() {
			return apperror.NewValidation("price cannot be negative").
				WithDetail("field", field)
		}
	}
	return nil
}

func (e PriceEdit) apply(m *MonetaryFields) {
	if e.BasePriceHome != nil {
		m.BasePriceHome = e.BasePriceHome
	}
	if e.CompareAtPriceHome != nil {
		m.CompareAtPriceHome = e.CompareAtPriceHome
	}
	if e.ClearCompareAt {
		m.CompareAtPriceHome = nil
	}
	if e.CostPriceHome != nil {
		m.CostPriceHome = e.CostPriceHome
	}
	if e.ClearCost {
		m.CostPriceHome = nil
	}
	m.MarkStale()
}

// Store is the persistence slice the price-edit service needs.
type Store interface {
	GetByID(ctx context.Context, productID id.ID) (*Product, error)
	GetVariant(ctx context.Context, variantID id.ID) (*Variant, error)
	UpdateHomePrices(ctx context.Context, p *Product) error
	UpdateVariantHomePrices(ctx context.Context, v *Variant) error
}

// EditListener observes applied price edits (audit trail).
type EditListener func(ctx context.Context, entityType string, entityID id.ID, edited any)

// Service applies admin price edits. An edit clears the record's rate
// version so previews recompute from home prices and the next sync pass
// restamps it.
type Service struct {
	store     Store
	listeners []EditListener
}

// NewService creates a price-edit service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// OnEdit registers a listener invoked after each persisted edit.
func (s *Service) OnEdit(l EditListener) {
	s.listeners = append(s.listeners, l)
}

// EditProductPrices updates a product's home-currency prices.
func (s *Service) EditProductPrices(ctx context.Context, productID id.ID, edit PriceEdit) (*Product, error) {
	if edit.empty() {
		return nil, apperror.NewValidation("no price fields to update")
	}
	if err := edit.validate(); err != nil {
		return nil, err
	}

	p, err := s.store.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	edit.apply(&p.MonetaryFields)
	if err := p.Validate(ctx); err != nil {
		return nil, err
	}
	if err := s.store.UpdateHomePrices(ctx, p); err != nil {
		return nil, err
	}

	s.notify(ctx, "product", p.ID, p)
	return p, nil
}

// EditVariantPrices updates a variant's home-currency prices.
func (s *Service) EditVariantPrices(ctx context.Context, variantID id.ID, edit PriceEdit) (*Variant, error) {
	if edit.empty() {
		return nil, apperror.NewValidation("no price fields to update")
	}
	if err := edit.validate(); err != nil {
		return nil, err
	}

	v, err := s.store.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}

	edit.apply(&v.MonetaryFields)
	if err := s.store.UpdateVariantHomePrices(ctx, v); err != nil {
		return nil, err
	}

	s.notify(ctx, "product_variant", v.ID, v)
	return v, nil
}

func (s *Service) notify(ctx context.Context, entityType string, entityID id.ID, edited any) {
	for _, l := range s.listeners {
		l(ctx, entityType, entityID, edited)
	}
}

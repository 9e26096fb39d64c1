package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/catalog/product"
	"mercatus/internal/infrastructure/http/v1/dto"
	"mercatus/internal/infrastructure/storage/postgres"
)

// ProductsHandler serves catalog reads, admin price edits, and the audit
// history of a product.
type ProductsHandler struct {
	*BaseHandler
	store   product.Store
	service *product.Service
	audit   *postgres.AuditTrail
}

// NewProductsHandler creates a products handler.
func NewProductsHandler(store product.Store, service *product.Service, audit *postgres.AuditTrail) *ProductsHandler {
	return &ProductsHandler{
		BaseHandler: NewBaseHandler(),
		store:       store,
		service:     service,
		audit:       audit,
	}
}

// Get returns a product.
// GET /api/v1/products/:id
func (h *ProductsHandler) Get(c *gin.Context) {
	productID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id").WithDetail("id", c.Param("id")))
		return
	}

	p, err := h.store.GetByID(c.Request.Context(), productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// EditPrices updates a product's home-currency prices. The edit marks the
// record stale; previews recompute from home prices until the next sync.
// PUT /api/v1/products/:id/prices
func (h *ProductsHandler) EditPrices(c *gin.Context) {
	productID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id").WithDetail("id", c.Param("id")))
		return
	}
	edit, ok := h.bindPriceEdit(c)
	if !ok {
		return
	}

	p, err := h.service.EditProductPrices(c.Request.Context(), productID, edit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, p)
}

// EditVariantPrices updates a variant's home-currency prices.
// PUT /api/v1/products/:id/variants/:variantId/prices
func (h *ProductsHandler) EditVariantPrices(c *gin.Context) {
	variantID, err := id.Parse(c.Param("variantId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid variant id").WithDetail("variantId", c.Param("variantId")))
		return
	}
	edit, ok := h.bindPriceEdit(c)
	if !ok {
		return
	}

	v, err := h.service.EditVariantPrices(c.Request.Context(), variantID, edit)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, v)
}

// Audit returns the audit history of a product, newest first.
// GET /api/v1/products/:id/audit?limit=20
func (h *ProductsHandler) Audit(c *gin.Context) {
	productID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id").WithDetail("id", c.Param("id")))
		return
	}
	limit := h.ParseIntQuery(c, "limit", 20)

	entries, err := h.audit.History(c.Request.Context(), "product", productID, limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.AuditEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.AuditEntryResponse{
			ID:         e.ID.String(),
			EntityType: e.EntityType,
			EntityID:   e.EntityID.String(),
			Action:     string(e.Action),
			ActorID:    e.ActorID,
			ActorEmail: e.ActorEmail,
			Payload:    e.Payload,
			CreatedAt:  e.CreatedAt,
		})
	}
	h.OK(c, out)
}

func (h *ProductsHandler) bindPriceEdit(c *gin.Context) (product.PriceEdit, bool) {
	var req dto.UpdatePricesRequest
	if !h.BindJSON(c, &req) {
		return product.PriceEdit{}, false
	}

	edit := product.PriceEdit{
		ClearCompareAt: req.ClearCompareAt,
		ClearCost:      req.ClearCost,
	}
	fields := []struct {
		name string
		raw  any
		dst  **decimal.Decimal
	}{
		{"basePriceHome", req.BasePriceHome, &edit.BasePriceHome},
		{"compareAtPriceHome", req.CompareAtPriceHome, &edit.CompareAtPriceHome},
		{"costPriceHome", req.CostPriceHome, &edit.CostPriceHome},
	}
	for _, f := range fields {
		if f.raw == nil {
			continue
		}
		v, ok := parseFlexibleNumber(f.raw)
		if !ok {
			h.Error(c, apperror.NewValidation("unparseable price value").
				WithDetail("field", f.name).
				WithDetail("value", fmt.Sprintf("%v", f.raw)))
			return product.PriceEdit{}, false
		}
		*f.dst = &v
	}
	return edit, true
}

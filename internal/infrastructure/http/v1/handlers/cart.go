package handlers

import (
	"github.com/gin-gonic/gin"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/cart"
	"mercatus/internal/infrastructure/http/v1/dto"
)

// CartHandler serves cart management and pricing preview endpoints.
type CartHandler struct {
	*BaseHandler
	repo   cart.Repository
	engine *cart.Engine
}

// NewCartHandler creates a cart handler.
func NewCartHandler(repo cart.Repository, engine *cart.Engine) *CartHandler {
	return &CartHandler{
		BaseHandler: NewBaseHandler(),
		repo:        repo,
		engine:      engine,
	}
}

func (h *CartHandler) cartID(c *gin.Context) (id.ID, bool) {
	cartID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid cart id").WithDetail("id", c.Param("id")))
		return id.Nil(), false
	}
	return cartID, true
}

// Create opens a new cart.
// POST /api/v1/carts
func (h *CartHandler) Create(c *gin.Context) {
	var req dto.CreateCartRequest
	if !h.BindJSON(c, &req) {
		return
	}

	newCart := cart.NewCart(req.OwnerID)
	if err := h.repo.Save(c.Request.Context(), newCart); err != nil {
		h.Error(c, err)
		return
	}
	h.Created(c, newCart.ID.String())
}

// Get returns a cart with its items.
// GET /api/v1/carts/:id
func (h *CartHandler) Get(c *gin.Context) {
	cartID, ok := h.cartID(c)
	if !ok {
		return
	}

	loaded, err := h.repo.GetByID(c.Request.Context(), cartID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loaded)
}

// UpsertItem sets a line's quantity. Zero quantity removes the line.
// PUT /api/v1/carts/:id/items
func (h *CartHandler) UpsertItem(c *gin.Context) {
	cartID, ok := h.cartID(c)
	if !ok {
		return
	}
	var req dto.CartItemRequest
	if !h.BindJSON(c, &req) {
		return
	}

	productID, err := id.Parse(req.ProductID)
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id").WithDetail("productId", req.ProductID))
		return
	}
	var variantID *id.ID
	if req.VariantID != nil {
		parsed, err := id.Parse(*req.VariantID)
		if err != nil {
			h.Error(c, apperror.NewValidation("invalid variant id").WithDetail("variantId", *req.VariantID))
			return
		}
		variantID = &parsed
	}

	ctx := c.Request.Context()
	loaded, err := h.repo.GetByID(ctx, cartID)
	if err != nil {
		h.Error(c, err)
		return
	}

	loaded.SetItemQty(productID, variantID, req.Qty)
	if err := h.repo.Save(ctx, loaded); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loaded)
}

// SetCoupons replaces the cart's attached coupon codes.
// PUT /api/v1/carts/:id/coupons
func (h *CartHandler) SetCoupons(c *gin.Context) {
	cartID, ok := h.cartID(c)
	if !ok {
		return
	}
	var req dto.CartCouponsRequest
	if !h.BindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	loaded, err := h.repo.GetByID(ctx, cartID)
	if err != nil {
		h.Error(c, err)
		return
	}

	loaded.CouponCodes = req.Codes
	if err := h.repo.Save(ctx, loaded); err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, loaded)
}

// Preview prices the cart in the requested currency.
// POST /api/v1/carts/:id/preview?currency=EUR&accountType=wholesale
func (h *CartHandler) Preview(c *gin.Context) {
	cartID, ok := h.cartID(c)
	if !ok {
		return
	}
	var query dto.PreviewQuery
	if !h.BindQuery(c, &query) {
		return
	}
	if query.Currency == "" {
		query.Currency = string(currency.Home)
	}

	ctx := c.Request.Context()
	loaded, err := h.repo.GetByID(ctx, cartID)
	if err != nil {
		h.Error(c, err)
		return
	}

	preview, err := h.engine.Preview(ctx, loaded, query.Currency, query.AccountType)
	if err != nil {
		h.Error(c, err)
		return
	}

	// Previews refresh each line's cached pricing; persist opportunistically.
	if err := h.repo.Save(ctx, loaded); err != nil {
		h.Error(c, err)
		return
	}

	h.OK(c, preview)
}

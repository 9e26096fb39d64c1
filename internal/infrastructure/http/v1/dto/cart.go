package dto

// CreateCartRequest opens a cart for an owner account.
type CreateCartRequest struct {
	OwnerID string `json:"ownerId" binding:"required"`
}

// CartItemRequest upserts one line. Zero quantity removes the line.
type CartItemRequest struct {
	ProductID string  `json:"productId" binding:"required"`
	VariantID *string `json:"variantId"`
	Qty       int     `json:"qty"`
}

// CartCouponsRequest replaces the cart's attached coupon codes.
type CartCouponsRequest struct {
	Codes []string `json:"codes"`
}

// PreviewQuery selects the pricing context for a preview.
type PreviewQuery struct {
	Currency    string `form:"currency"`
	AccountType string `form:"accountType"`
}

package cart

import (
	"context"

	"mercatus/internal/core/id"
)

// Repository defines cart persistence. Save writes the cart and its lines
// together, including refreshed per-line cached pricing after a preview.
type Repository interface {
	// GetByID returns the cart with its items, or apperror.CodeNotFound.
	GetByID(ctx context.Context, cartID id.ID) (*Cart, error)

	// Save upserts the cart and replaces its item set.
	Save(ctx context.Context, c *Cart) error
}

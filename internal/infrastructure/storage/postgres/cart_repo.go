package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/cart"
)

const (
	cartTable     = "doc_carts"
	cartItemTable = "doc_cart_items"
)

type cartRow struct {
	ID           id.ID     `db:"id"`
	DeletionMark bool      `db:"deletion_mark"`
	Version      int       `db:"version"`
	OwnerID      string    `db:"owner_id"`
	CouponCodes  []string  `db:"coupon_codes"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
	CreatedBy    string    `db:"created_by"`
	UpdatedBy    string    `db:"updated_by"`
}

type cartItemRow struct {
	ID        id.ID           `db:"id"`
	CartID    id.ID           `db:"cart_id"`
	ProductID id.ID           `db:"product_id"`
	VariantID *id.ID          `db:"variant_id"`
	Qty       int             `db:"qty"`
	Pricing   json.RawMessage `db:"pricing"`
}

// CartRepo implements cart.Repository.
type CartRepo struct {
	txManager *TxManager
}

// NewCartRepo creates a cart repository.
func NewCartRepo(txManager *TxManager) *CartRepo {
	return &CartRepo{txManager: txManager}
}

func (r *CartRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// GetByID returns the cart with its items.
func (r *CartRepo) GetByID(ctx context.Context, cartID id.ID) (*cart.Cart, error) {
	q := r.builder().
		Select("id", "deletion_mark", "version", "owner_id", "coupon_codes",
			"created_at", "updated_at", "created_by", "updated_by").
		From(cartTable).
		Where(squirrel.Eq{"id": cartID}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row cartRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("cart", cartID.String())
		}
		return nil, fmt.Errorf("get cart: %w", err)
	}

	c := &cart.Cart{
		OwnerID:     row.OwnerID,
		CouponCodes: row.CouponCodes,
	}
	c.ID = row.ID
	c.DeletionMark = row.DeletionMark
	c.Version = row.Version
	c.CreatedAt = row.CreatedAt
	c.UpdatedAt = row.UpdatedAt
	c.CreatedBy = row.CreatedBy
	c.UpdatedBy = row.UpdatedBy

	items, err := r.itemsByCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	c.Items = items
	return c, nil
}

func (r *CartRepo) itemsByCart(ctx context.Context, cartID id.ID) ([]*cart.Item, error) {
	q := r.builder().
		Select("id", "cart_id", "product_id", "variant_id", "qty", "pricing").
		From(cartItemTable).
		Where(squirrel.Eq{"cart_id": cartID}).
		OrderBy("id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*cartItemRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}

	items := make([]*cart.Item, 0, len(rows))
	for _, row := range rows {
		item := &cart.Item{
			ID:        row.ID,
			CartID:    row.CartID,
			ProductID: row.ProductID,
			VariantID: row.VariantID,
			Qty:       row.Qty,
		}
		if len(row.Pricing) > 0 {
			var cached cart.CachedPricing
			if err := json.Unmarshal(row.Pricing, &cached); err != nil {
				return nil, fmt.Errorf("unmarshal cached pricing: %w", err)
			}
			item.Pricing = &cached
		}
		items = append(items, item)
	}
	return items, nil
}

// Save upserts the cart header and replaces its item set atomically.
func (r *CartRepo) Save(ctx context.Context, c *cart.Cart) error {
	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		querier := r.txManager.GetQuerier(ctx)
		now := time.Now().UTC()

		upsert := `
			INSERT INTO doc_carts (
				id, deletion_mark, version, owner_id, coupon_codes,
				created_at, updated_at, created_by, updated_by
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				coupon_codes = EXCLUDED.coupon_codes,
				updated_at = EXCLUDED.updated_at,
				updated_by = EXCLUDED.updated_by,
				version = doc_carts.version + 1
		`
		_, err := querier.Exec(ctx, upsert,
			c.ID, c.DeletionMark, c.Version, c.OwnerID, c.CouponCodes,
			c.CreatedAt, now, c.CreatedBy, c.UpdatedBy,
		)
		if err != nil {
			return fmt.Errorf("upsert cart: %w", err)
		}

		del, args, err := r.builder().
			Delete(cartItemTable).
			Where(squirrel.Eq{"cart_id": c.ID}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build delete: %w", err)
		}
		if _, err := querier.Exec(ctx, del, args...); err != nil {
			return fmt.Errorf("clear cart items: %w", err)
		}

		for _, item := range c.Items {
			var pricingBody json.RawMessage
			if item.Pricing != nil {
				pricingBody, err = json.Marshal(item.Pricing)
				if err != nil {
					return fmt.Errorf("marshal cached pricing: %w", err)
				}
			}
			q := r.builder().
				Insert(cartItemTable).
				Columns("id", "cart_id", "product_id", "variant_id", "qty", "pricing").
				Values(item.ID, c.ID, item.ProductID, item.VariantID, item.Qty, pricingBody)

			sql, args, err := q.ToSql()
			if err != nil {
				return fmt.Errorf("build insert: %w", err)
			}
			if _, err := querier.Exec(ctx, sql, args...); err != nil {
				return fmt.Errorf("insert cart item: %w", err)
			}
		}
		return nil
	})
}

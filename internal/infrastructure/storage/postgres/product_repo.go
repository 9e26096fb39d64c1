package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/shopspring/decimal"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/currency"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/catalog/product"
	"mercatus/internal/domain/pricing"
)

const (
	productTable = "cat_products"
	variantTable = "cat_product_variants"
)

// monetaryColumns are shared by products and variants.
var monetaryColumns = []string{
	"base_price_home", "compare_at_price_home", "cost_price_home",
	"per_currency_prices", "rate_version", "last_synced_at",
}

// productRow flattens product.Product for scany: the per-currency map
// travels as jsonb.
type productRow struct {
	ID           id.ID   `db:"id"`
	Code         string  `db:"code"`
	Name         string  `db:"name"`
	DeletionMark bool    `db:"deletion_mark"`
	Version      int     `db:"version"`
	SKU          *string `db:"sku"`
	Description  *string `db:"description"`
	Active       bool    `db:"active"`

	monetaryRow
}

type variantRow struct {
	ID           id.ID  `db:"id"`
	ProductID    id.ID  `db:"product_id"`
	Name         string `db:"name"`
	DeletionMark bool   `db:"deletion_mark"`
	Version      int    `db:"version"`
	SKU          *string `db:"sku"`

	monetaryRow
}

type monetaryRow struct {
	BasePriceHome      *decimal.Decimal `db:"base_price_home"`
	CompareAtPriceHome *decimal.Decimal `db:"compare_at_price_home"`
	CostPriceHome      *decimal.Decimal `db:"cost_price_home"`
	PerCurrencyPrices  json.RawMessage  `db:"per_currency_prices"`
	RateVersion        *string          `db:"rate_version"`
	LastSyncedAt       *time.Time       `db:"last_synced_at"`
}

func (m *monetaryRow) toFields() (product.MonetaryFields, error) {
	fields := product.MonetaryFields{
		BasePriceHome:      m.BasePriceHome,
		CompareAtPriceHome: m.CompareAtPriceHome,
		CostPriceHome:      m.CostPriceHome,
		LastSyncedAt:       m.LastSyncedAt,
	}
	if m.RateVersion != nil {
		fields.RateVersion = *m.RateVersion
	}
	if len(m.PerCurrencyPrices) > 0 {
		var prices map[currency.Code]pricing.PriceSet
		if err := json.Unmarshal(m.PerCurrencyPrices, &prices); err != nil {
			return fields, fmt.Errorf("unmarshal per-currency prices: %w", err)
		}
		fields.PerCurrencyPrices = prices
	}
	return fields, nil
}

func marshalPrices(fields product.MonetaryFields) (json.RawMessage, error) {
	if fields.PerCurrencyPrices == nil {
		return nil, nil
	}
	body, err := json.Marshal(fields.PerCurrencyPrices)
	if err != nil {
		return nil, fmt.Errorf("marshal per-currency prices: %w", err)
	}
	return body, nil
}

// ProductRepo implements product.Repository.
type ProductRepo struct {
	txManager *TxManager
}

// NewProductRepo creates a product repository.
func NewProductRepo(txManager *TxManager) *ProductRepo {
	return &ProductRepo{txManager: txManager}
}

func (r *ProductRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *ProductRepo) productSelect() squirrel.SelectBuilder {
	cols := append([]string{"id", "code", "name", "deletion_mark", "version", "sku", "description", "active"}, monetaryColumns...)
	return r.builder().Select(cols...).From(productTable)
}

func (r *ProductRepo) variantSelect() squirrel.SelectBuilder {
	cols := append([]string{"id", "product_id", "name", "deletion_mark", "version", "sku"}, monetaryColumns...)
	return r.builder().Select(cols...).From(variantTable)
}

// GetByID retrieves a product.
func (r *ProductRepo) GetByID(ctx context.Context, productID id.ID) (*product.Product, error) {
	q := r.productSelect().
		Where(squirrel.Eq{"id": productID}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row productRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("product", productID.String())
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return rowToProduct(&row)
}

// GetVariant retrieves a variant.
func (r *ProductRepo) GetVariant(ctx context.Context, variantID id.ID) (*product.Variant, error) {
	q := r.variantSelect().
		Where(squirrel.Eq{"id": variantID}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row variantRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("variant", variantID.String())
		}
		return nil, fmt.Errorf("get variant: %w", err)
	}
	return rowToVariant(&row)
}

// ListAfter returns products with id > after, in id order. UUIDv7 keys
// make this the sync job's resume cursor.
func (r *ProductRepo) ListAfter(ctx context.Context, after id.ID, limit int) ([]*product.Product, error) {
	q := r.productSelect().
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("id ASC").
		Limit(uint64(limit))
	if !id.IsNil(after) {
		q = q.Where(squirrel.Gt{"id": after})
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*productRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}

	out := make([]*product.Product, 0, len(rows))
	for _, row := range rows {
		p, err := rowToProduct(row)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// CountActive counts non-deleted products.
func (r *ProductRepo) CountActive(ctx context.Context) (int, error) {
	q := r.builder().
		Select("COUNT(*)").
		From(productTable).
		Where(squirrel.Eq{"deletion_mark": false})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var count int
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count products: %w", err)
	}
	return count, nil
}

// VariantsByProduct returns all non-deleted variants of a product.
func (r *ProductRepo) VariantsByProduct(ctx context.Context, productID id.ID) ([]*product.Variant, error) {
	q := r.variantSelect().
		Where(squirrel.Eq{"product_id": productID}).
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("id ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*variantRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}

	out := make([]*product.Variant, 0, len(rows))
	for _, row := range rows {
		v, err := rowToVariant(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// UpdateDerivedPrices persists a product's derived per-currency prices and
// sync stamp.
func (r *ProductRepo) UpdateDerivedPrices(ctx context.Context, p *product.Product) error {
	body, err := marshalPrices(p.MonetaryFields)
	if err != nil {
		return err
	}

	q := r.builder().
		Update(productTable).
		Set("per_currency_prices", body).
		Set("rate_version", p.RateVersion).
		Set("last_synced_at", p.LastSyncedAt).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": p.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("update derived prices: %w", err)
	}
	return nil
}

// UpdateHomePrices persists an admin price edit: home-currency columns,
// cleared rate version, bumped optimistic version.
func (r *ProductRepo) UpdateHomePrices(ctx context.Context, p *product.Product) error {
	q := r.builder().
		Update(productTable).
		Set("base_price_home", p.BasePriceHome).
		Set("compare_at_price_home", p.CompareAtPriceHome).
		Set("cost_price_home", p.CostPriceHome).
		Set("rate_version", p.RateVersion).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": p.ID}).
		Where(squirrel.Eq{"deletion_mark": false})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update home prices: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("product", p.ID.String())
	}
	return nil
}

// UpdateVariantHomePrices is the variant counterpart of UpdateHomePrices.
func (r *ProductRepo) UpdateVariantHomePrices(ctx context.Context, v *product.Variant) error {
	q := r.builder().
		Update(variantTable).
		Set("base_price_home", v.BasePriceHome).
		Set("compare_at_price_home", v.CompareAtPriceHome).
		Set("cost_price_home", v.CostPriceHome).
		Set("rate_version", v.RateVersion).
		Set("version", squirrel.Expr("version + 1")).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": v.ID}).
		Where(squirrel.Eq{"deletion_mark": false})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update variant home prices: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("variant", v.ID.String())
	}
	return nil
}

// BulkUpsertVariantPrices persists derived prices for a set of variants in
// one batched round trip.
func (r *ProductRepo) BulkUpsertVariantPrices(ctx context.Context, variants []*product.Variant) error {
	if len(variants) == 0 {
		return nil
	}

	return r.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		queries := make([]BatchQuery, 0, len(variants))
		now := time.Now().UTC()
		for _, v := range variants {
			body, err := marshalPrices(v.MonetaryFields)
			if err != nil {
				return err
			}
			sql, args, err := r.builder().
				Update(variantTable).
				Set("per_currency_prices", body).
				Set("rate_version", v.RateVersion).
				Set("last_synced_at", v.LastSyncedAt).
				Set("updated_at", now).
				Where(squirrel.Eq{"id": v.ID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("build variant update: %w", err)
			}
			queries = append(queries, BatchQuery{SQL: sql, Args: args})
		}

		return NewBatchExecutor(r.txManager).ExecuteBatch(ctx, queries)
	})
}

func rowToProduct(row *productRow) (*product.Product, error) {
	fields, err := row.toFields()
	if err != nil {
		return nil, err
	}
	p := &product.Product{
		MonetaryFields: fields,
		SKU:            row.SKU,
		Description:    row.Description,
		Active:         row.Active,
	}
	p.ID = row.ID
	p.Code = row.Code
	p.Name = row.Name
	p.DeletionMark = row.DeletionMark
	p.Version = row.Version
	return p, nil
}

func rowToVariant(row *variantRow) (*product.Variant, error) {
	fields, err := row.toFields()
	if err != nil {
		return nil, err
	}
	v := &product.Variant{
		MonetaryFields: fields,
		ProductID:      row.ProductID,
		SKU:            row.SKU,
		Name:           row.Name,
	}
	v.ID = row.ID
	v.DeletionMark = row.DeletionMark
	v.Version = row.Version
	return v, nil
}

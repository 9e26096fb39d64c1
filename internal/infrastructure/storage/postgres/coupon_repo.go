package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"mercatus/internal/core/apperror"
	"mercatus/internal/domain/coupon"
)

const couponTable = "cat_coupon_rules"

// CouponRepo implements coupon.Resolver.
type CouponRepo struct {
	txManager  *TxManager
	selectCols []string
}

// NewCouponRepo creates a coupon rule repository.
func NewCouponRepo(txManager *TxManager) *CouponRepo {
	return &CouponRepo{
		txManager:  txManager,
		selectCols: ExtractDBColumns[coupon.Rule](),
	}
}

func (r *CouponRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// FindByCode returns the active rule for code, or a not-found error.
// Lookup is case-sensitive: coupon codes are issued uppercase.
func (r *CouponRepo) FindByCode(ctx context.Context, code string) (*coupon.Rule, error) {
	q := r.builder().
		Select(r.selectCols...).
		From(couponTable).
		Where(squirrel.Eq{"code": code}).
		Where(squirrel.Eq{"active": true}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rule coupon.Rule
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &rule, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("coupon", code)
		}
		return nil, fmt.Errorf("find coupon: %w", err)
	}
	return &rule, nil
}

// Create inserts a rule. Used by the seeder and admin tooling.
func (r *CouponRepo) Create(ctx context.Context, rule *coupon.Rule) error {
	data := StructToMap(rule)
	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder().Insert(couponTable).SetMap(filtered)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert coupon rule: %w", err)
	}
	return nil
}

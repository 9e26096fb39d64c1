package postgres

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"mercatus/internal/core/id"
	"mercatus/internal/domain/promotion"
)

const promotionTable = "cat_promotion_rules"

// PromotionRepo implements promotion.Repository.
type PromotionRepo struct {
	txManager  *TxManager
	selectCols []string
}

// NewPromotionRepo creates a promotion rule repository.
func NewPromotionRepo(txManager *TxManager) *PromotionRepo {
	return &PromotionRepo{
		txManager:  txManager,
		selectCols: ExtractDBColumns[promotion.Rule](),
	}
}

func (r *PromotionRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// ActiveForVariant returns active rules for a variant, highest priority
// first.
func (r *PromotionRepo) ActiveForVariant(ctx context.Context, variantID id.ID) ([]*promotion.Rule, error) {
	q := r.builder().
		Select(r.selectCols...).
		From(promotionTable).
		Where(squirrel.Eq{"variant_id": variantID}).
		Where(squirrel.Eq{"active": true}).
		Where(squirrel.Eq{"deletion_mark": false}).
		OrderBy("priority DESC", "code ASC")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rules []*promotion.Rule
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rules, sql, args...); err != nil {
		return nil, fmt.Errorf("list promotion rules: %w", err)
	}
	return rules, nil
}

// Create inserts a rule. Used by the seeder and admin tooling.
func (r *PromotionRepo) Create(ctx context.Context, rule *promotion.Rule) error {
	data := StructToMap(rule)
	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder().Insert(promotionTable).SetMap(filtered)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert promotion rule: %w", err)
	}
	return nil
}

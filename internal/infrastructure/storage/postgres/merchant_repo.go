package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"mercatus/internal/domain/merchant"
)

const merchantTierTable = "cat_merchant_tiers"

// MerchantTierRepo implements merchant.TierProvider.
type MerchantTierRepo struct {
	txManager  *TxManager
	selectCols []string
}

// NewMerchantTierRepo creates a merchant tier repository.
func NewMerchantTierRepo(txManager *TxManager) *MerchantTierRepo {
	return &MerchantTierRepo{
		txManager:  txManager,
		selectCols: ExtractDBColumns[merchant.Tier](),
	}
}

func (r *MerchantTierRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// DiscountPercent returns the tier percentage for accountType. Unknown
// account types get zero, not an error.
func (r *MerchantTierRepo) DiscountPercent(ctx context.Context, accountType string) (decimal.Decimal, error) {
	q := r.builder().
		Select("discount_percent").
		From(merchantTierTable).
		Where(squirrel.Eq{"account_type": accountType}).
		Where(squirrel.Eq{"deletion_mark": false}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return decimal.Zero, fmt.Errorf("build query: %w", err)
	}

	var percent decimal.Decimal
	querier := r.txManager.GetQuerier(ctx)
	if err := querier.QueryRow(ctx, sql, args...).Scan(&percent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, fmt.Errorf("tier lookup: %w", err)
	}
	return percent, nil
}

// Create inserts a tier. Used by the seeder and admin tooling.
func (r *MerchantTierRepo) Create(ctx context.Context, tier *merchant.Tier) error {
	data := StructToMap(tier)
	filtered := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filtered[col] = val
		}
	}

	q := r.builder().Insert(merchantTierTable).SetMap(filtered)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert merchant tier: %w", err)
	}
	return nil
}

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
	"mercatus/internal/domain/rates"
)

const rateSnapshotTable = "fx_rate_snapshots"

// rateSnapshotRow is the storage shape of a snapshot: the per-currency map
// travels as jsonb.
type rateSnapshotRow struct {
	ID          id.ID           `db:"id"`
	Rates       json.RawMessage `db:"rates"`
	EffectiveAt time.Time       `db:"effective_at"`
	UpdatedBy   string          `db:"updated_by"`
	Notes       string          `db:"notes"`
}

// RateRepo implements rates.Repository over an append-only snapshot table.
type RateRepo struct {
	txManager *TxManager
}

// NewRateRepo creates a rate snapshot repository.
func NewRateRepo(txManager *TxManager) *RateRepo {
	return &RateRepo{txManager: txManager}
}

func (r *RateRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *RateRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder().
		Select("id", "rates", "effective_at", "updated_by", "notes").
		From(rateSnapshotTable)
}

// Latest retrieves the most recent snapshot by effective timestamp.
func (r *RateRepo) Latest(ctx context.Context) (*rates.Snapshot, error) {
	q := r.baseSelect().OrderBy("effective_at DESC").Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row rateSnapshotRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("rate snapshot", "latest")
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	return rowToSnapshot(&row)
}

// Insert appends a new snapshot.
func (r *RateRepo) Insert(ctx context.Context, snap *rates.Snapshot) error {
	body, err := json.Marshal(snap.HomeToForeign)
	if err != nil {
		return fmt.Errorf("marshal rates: %w", err)
	}

	q := r.builder().
		Insert(rateSnapshotTable).
		Columns("id", "rates", "effective_at", "updated_by", "notes").
		Values(snap.ID, body, snap.EffectiveAt, snap.UpdatedBy, snap.Notes)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

// ByEffectiveAt retrieves the snapshot with the exact effective timestamp.
func (r *RateRepo) ByEffectiveAt(ctx context.Context, at time.Time) (*rates.Snapshot, error) {
	q := r.baseSelect().Where(squirrel.Eq{"effective_at": at}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row rateSnapshotRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("rate snapshot", at.Format(time.RFC3339Nano))
		}
		return nil, fmt.Errorf("snapshot by effective_at: %w", err)
	}

	return rowToSnapshot(&row)
}

// History lists snapshots newest-first, capped at limit.
func (r *RateRepo) History(ctx context.Context, limit int) ([]*rates.Snapshot, error) {
	q := r.baseSelect().OrderBy("effective_at DESC").Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*rateSnapshotRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("snapshot history: %w", err)
	}

	out := make([]*rates.Snapshot, 0, len(rows))
	for _, row := range rows {
		snap, err := rowToSnapshot(row)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func rowToSnapshot(row *rateSnapshotRow) (*rates.Snapshot, error) {
	var homeToForeign map[currency.Code]decimal.Decimal
	if err := json.Unmarshal(row.Rates, &homeToForeign); err != nil {
		return nil, fmt.Errorf("unmarshal rates: %w", err)
	}
	return &rates.Snapshot{
		ID:            row.ID,
		HomeToForeign: homeToForeign,
		EffectiveAt:   row.EffectiveAt,
		UpdatedBy:     row.UpdatedBy,
		Notes:         row.Notes,
	}, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgconn"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/id"
	syncjob "mercatus/internal/domain/sync"
)

const syncJobTable = "sync_jobs"

// activeJobIndex is the partial unique index enforcing one pending or
// running job at a time. Insert maps its violation to ErrActiveJobExists.
const activeJobIndex = "idx_sync_jobs_active"

type syncJobRow struct {
	ID           id.ID  `db:"id"`
	DeletionMark bool   `db:"deletion_mark"`
	Version      int    `db:"version"`
	Status       string `db:"status"`
	Reason       string `db:"reason"`
	TriggeredBy  string `db:"triggered_by"`
	RateVersion  string `db:"rate_version"`

	TotalItems     int `db:"total_items"`
	ProcessedItems int `db:"processed_items"`
	SucceededItems int `db:"succeeded_items"`
	FailedItems    int `db:"failed_items"`

	LastProcessedID id.ID           `db:"last_processed_id"`
	Errors          json.RawMessage `db:"errors"`

	StartedAt   *time.Time `db:"started_at"`
	FinishedAt  *time.Time `db:"finished_at"`
	HeartbeatAt *time.Time `db:"heartbeat_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
	CreatedBy   string     `db:"created_by"`
	UpdatedBy   string     `db:"updated_by"`
}

// SyncJobRepo implements sync.Repository.
type SyncJobRepo struct {
	txManager *TxManager
}

// NewSyncJobRepo creates a sync job repository.
func NewSyncJobRepo(txManager *TxManager) *SyncJobRepo {
	return &SyncJobRepo{txManager: txManager}
}

func (r *SyncJobRepo) builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *SyncJobRepo) baseSelect() squirrel.SelectBuilder {
	return r.builder().Select(
		"id", "deletion_mark", "version", "status", "reason", "triggered_by", "rate_version",
		"total_items", "processed_items", "succeeded_items", "failed_items",
		"last_processed_id", "errors",
		"started_at", "finished_at", "heartbeat_at",
		"created_at", "updated_at", "created_by", "updated_by",
	).From(syncJobTable)
}

// Insert stores a new job, mapping the active-job index violation to
// ErrActiveJobExists.
func (r *SyncJobRepo) Insert(ctx context.Context, job *syncjob.Job) error {
	row, err := jobToRow(job)
	if err != nil {
		return err
	}

	q := r.builder().Insert(syncJobTable).SetMap(StructToMap(row))

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeJobIndex {
			return syncjob.ErrActiveJobExists
		}
		return fmt.Errorf("insert sync job: %w", err)
	}
	return nil
}

// FindActive returns the pending or running job, or nil.
func (r *SyncJobRepo) FindActive(ctx context.Context) (*syncjob.Job, error) {
	q := r.baseSelect().
		Where(squirrel.Eq{"status": []string{string(syncjob.StatusPending), string(syncjob.StatusRunning)}}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row syncJobRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("find active job: %w", err)
	}
	return rowToJob(&row)
}

// GetByID returns the job or a not-found error.
func (r *SyncJobRepo) GetByID(ctx context.Context, jobID id.ID) (*syncjob.Job, error) {
	q := r.baseSelect().Where(squirrel.Eq{"id": jobID}).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var row syncJobRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &row, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, apperror.NewNotFound("sync job", jobID.String())
		}
		return nil, fmt.Errorf("get sync job: %w", err)
	}
	return rowToJob(&row)
}

// UpdateProgress persists counters, cursor, errors and heartbeat.
func (r *SyncJobRepo) UpdateProgress(ctx context.Context, job *syncjob.Job) error {
	return r.writeBack(ctx, job, "update sync job progress")
}

// Finish persists the terminal state and final counters.
func (r *SyncJobRepo) Finish(ctx context.Context, job *syncjob.Job) error {
	return r.writeBack(ctx, job, "finish sync job")
}

func (r *SyncJobRepo) writeBack(ctx context.Context, job *syncjob.Job, op string) error {
	errorsBody, err := json.Marshal(job.Errors)
	if err != nil {
		return fmt.Errorf("marshal job errors: %w", err)
	}

	q := r.builder().
		Update(syncJobTable).
		Set("status", string(job.Status)).
		Set("processed_items", job.ProcessedItems).
		Set("succeeded_items", job.SucceededItems).
		Set("failed_items", job.FailedItems).
		Set("last_processed_id", job.LastProcessedID).
		Set("errors", errorsBody).
		Set("started_at", job.StartedAt).
		Set("finished_at", job.FinishedAt).
		Set("heartbeat_at", job.HeartbeatAt).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": job.ID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewNotFound("sync job", job.ID.String())
	}
	return nil
}

// ListRecent returns the newest jobs.
func (r *SyncJobRepo) ListRecent(ctx context.Context, limit int) ([]*syncjob.Job, error) {
	q := r.baseSelect().OrderBy("created_at DESC").Limit(uint64(limit))

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []*syncJobRow
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("list sync jobs: %w", err)
	}

	out := make([]*syncjob.Job, 0, len(rows))
	for _, row := range rows {
		job, err := rowToJob(row)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

// RequeueStuck flips running jobs with heartbeats older than cutoff back
// to pending.
func (r *SyncJobRepo) RequeueStuck(ctx context.Context, cutoff time.Time) (int, error) {
	q := r.builder().
		Update(syncJobTable).
		Set("status", string(syncjob.StatusPending)).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"status": string(syncjob.StatusRunning)}).
		Where(squirrel.Lt{"heartbeat_at": cutoff})

	sql, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build update: %w", err)
	}

	querier := r.txManager.GetQuerier(ctx)
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue stuck jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func jobToRow(job *syncjob.Job) (*syncJobRow, error) {
	errorsBody, err := json.Marshal(job.Errors)
	if err != nil {
		return nil, fmt.Errorf("marshal job errors: %w", err)
	}
	return &syncJobRow{
		ID:              job.ID,
		DeletionMark:    job.DeletionMark,
		Version:         job.Version,
		Status:          string(job.Status),
		Reason:          string(job.Reason),
		TriggeredBy:     job.TriggeredBy,
		RateVersion:     job.RateVersion,
		TotalItems:      job.TotalItems,
		ProcessedItems:  job.ProcessedItems,
		SucceededItems:  job.SucceededItems,
		FailedItems:     job.FailedItems,
		LastProcessedID: job.LastProcessedID,
		Errors:          errorsBody,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		HeartbeatAt:     job.HeartbeatAt,
		CreatedAt:       job.CreatedAt,
		UpdatedAt:       job.UpdatedAt,
		CreatedBy:       job.CreatedBy,
		UpdatedBy:       job.UpdatedBy,
	}, nil
}

func rowToJob(row *syncJobRow) (*syncjob.Job, error) {
	job := &syncjob.Job{
		Status:          syncjob.Status(row.Status),
		Reason:          syncjob.Reason(row.Reason),
		TriggeredBy:     row.TriggeredBy,
		RateVersion:     row.RateVersion,
		TotalItems:      row.TotalItems,
		ProcessedItems:  row.ProcessedItems,
		SucceededItems:  row.SucceededItems,
		FailedItems:     row.FailedItems,
		LastProcessedID: row.LastProcessedID,
		StartedAt:       row.StartedAt,
		FinishedAt:      row.FinishedAt,
		HeartbeatAt:     row.HeartbeatAt,
	}
	job.ID = row.ID
	job.DeletionMark = row.DeletionMark
	job.Version = row.Version
	job.CreatedAt = row.CreatedAt
	job.UpdatedAt = row.UpdatedAt
	job.CreatedBy = row.CreatedBy
	job.UpdatedBy = row.UpdatedBy

	if len(row.Errors) > 0 {
		if err := json.Unmarshal(row.Errors, &job.Errors); err != nil {
			return nil, fmt.Errorf("unmarshal job errors: %w", err)
		}
	}
	return job, nil
}

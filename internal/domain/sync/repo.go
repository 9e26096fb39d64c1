package sync

import (
	"context"
	"errors"
	"time"

	"mercatus/internal/core/id"
)

// ErrActiveJobExists is returned by Insert when a pending or running job
// already holds the single-active-job slot. Postgres enforces this with a
// partial unique index, so concurrent triggers race safely.
var ErrActiveJobExists = errors.New("an active sync job already exists")

// Repository defines persistence for sync jobs.
type Repository interface {
	// Insert stores a new job. Returns ErrActiveJobExists when another
	// job is pending or running.
	Insert(ctx context.Context, job *Job) error

	// FindActive returns the pending or running job, or nil when none.
	FindActive(ctx context.Context) (*Job, error)

	// GetByID returns the job or apperror.CodeNotFound.
	GetByID(ctx context.Context, jobID id.ID) (*Job, error)

	// UpdateProgress persists counters, cursor, errors and heartbeat.
	UpdateProgress(ctx context.Context, job *Job) error

	// Finish persists the terminal state along with final counters.
	Finish(ctx context.Context, job *Job) error

	// ListRecent returns the newest jobs, up to limit.
	ListRecent(ctx context.Context, limit int) ([]*Job, error)

	// RequeueStuck flips running jobs whose heartbeat is older than
	// cutoff back to pending and returns how many were requeued.
	RequeueStuck(ctx context.Context, cutoff time.Time) (int, error)
}

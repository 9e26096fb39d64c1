package sync

import (
	"context"
	"errors"
	"time"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/id"
	"mercatus/internal/domain/catalog/product"
	"mercatus/internal/domain/pricing"
	"mercatus/internal/domain/rates"
	"mercatus/pkg/logger"
)

// RateSource is the rate surface the job needs. *rates.Service satisfies it.
type RateSource interface {
	CurrentRates(ctx context.Context) (*rates.Snapshot, error)
	SnapshotByVersion(ctx context.Context, version string) (*rates.Snapshot, error)
}

// Service triggers and runs price synchronization jobs.
type Service struct {
	jobs     Repository
	products product.Repository
	rates    RateSource
	now      func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a sync service.
func NewService(jobs Repository, products product.Repository, rateSource RateSource, opts ...Option) *Service {
	s := &Service{
		jobs:     jobs,
		products: products,
		rates:    rateSource,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubscribeTo registers the service on the rate update stream so every
// persisted snapshot kicks off a resync.
func (s *Service) SubscribeTo(rateService *rates.Service) {
	rateService.OnUpdate(func(ctx context.Context, snap *rates.Snapshot) {
		if _, err := s.Trigger(ctx, ReasonRateUpdate, snap.UpdatedBy); err != nil {
			logger.Error(ctx, "failed to trigger sync after rate update",
				"rate_version", snap.Version(), "error", err)
		}
	})
}

// Trigger creates a pending job, or returns the already active one.
// Triggering is idempotent: callers always get a job back and at most one
// is active at a time.
func (s *Service) Trigger(ctx context.Context, reason Reason, triggeredBy string) (*Job, error) {
	if active, err := s.jobs.FindActive(ctx); err != nil {
		return nil, err
	} else if active != nil {
		return active, nil
	}

	snap, err := s.rates.CurrentRates(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.products.CountActive(ctx)
	if err != nil {
		return nil, err
	}

	job := NewJob(reason, snap.Version(), triggeredBy)
	job.TotalItems = total
	if err := job.Validate(ctx); err != nil {
		return nil, err
	}

	if err := s.jobs.Insert(ctx, job); err != nil {
		// Lost the race: another trigger landed first. Return its job.
		if errors.Is(err, ErrActiveJobExists) {
			if active, findErr := s.jobs.FindActive(ctx); findErr == nil && active != nil {
				return active, nil
			}
		}
		return nil, err
	}

	logger.Info(ctx, "sync job created",
		"job_id", job.ID, "reason", reason, "total_items", total, "rate_version", job.RateVersion)
	return job, nil
}

// Run processes the job to completion in batches, resuming from the
// cursor if the job was already running. Per-item failures are recorded
// and skipped; only infrastructure errors fail the whole job.
func (s *Service) Run(ctx context.Context, jobID id.ID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return apperror.NewSyncJobInvalid("job is already finished").
			WithDetail("status", string(job.Status))
	}

	// A job picked up in Running state is a resume after a crash or a
	// watchdog requeue: counters and cursor are kept as-is.
	if job.Status == StatusPending {
		startedAt := s.now()
		job.StartedAt = &startedAt
	}
	job.Status = StatusRunning
	heartbeat := s.now()
	job.HeartbeatAt = &heartbeat
	if err := s.jobs.UpdateProgress(ctx, job); err != nil {
		return err
	}

	snap, err := s.rates.SnapshotByVersion(ctx, job.RateVersion)
	if err != nil {
		return s.failJob(ctx, job, err)
	}

	syncedAt := s.now()
	for {
		batch, err := s.products.ListAfter(ctx, job.LastProcessedID, BatchSize)
		if err != nil {
			return s.failJob(ctx, job, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, p := range batch {
			if err := s.syncProduct(ctx, p, snap, syncedAt); err != nil {
				job.RecordFailure(p.ID, err.Error(), s.now())
				logger.Warn(ctx, "sync item failed",
					"job_id", job.ID, "product_id", p.ID, "error", err)
				continue
			}
			job.RecordSuccess()
		}

		job.LastProcessedID = batch[len(batch)-1].ID
		heartbeat = s.now()
		job.HeartbeatAt = &heartbeat
		if err := s.jobs.UpdateProgress(ctx, job); err != nil {
			return err
		}

		if len(batch) < BatchSize {
			break
		}
	}

	job.Status = StatusCompleted
	finishedAt := s.now()
	job.FinishedAt = &finishedAt
	if err := s.jobs.Finish(ctx, job); err != nil {
		return err
	}

	logger.Info(ctx, "sync job completed",
		"job_id", job.ID,
		"processed", job.ProcessedItems,
		"succeeded", job.SucceededItems,
		"failed", job.FailedItems)
	return nil
}

// RetryProduct reprocesses one failed item of a finished job, using the
// rate version the job originally ran with rather than the latest rates.
func (s *Service) RetryProduct(ctx context.Context, jobID, productID id.ID) (*Job, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	// Resolve the product before gating on the failed set so an unknown id
	// reports not-found rather than an invalid-job error.
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !job.FailedProduct(productID) {
		return nil, apperror.NewSyncJobInvalid("product is not in the job's failed set").
			WithDetail("productId", productID.String())
	}

	snap, err := s.rates.SnapshotByVersion(ctx, job.RateVersion)
	if err != nil {
		return nil, err
	}

	if err := s.syncProduct(ctx, p, snap, s.now()); err != nil {
		return nil, apperror.NewSyncFailed(err).
			WithDetail("productId", productID.String())
	}

	job.ResolveFailure(productID)
	if err := s.jobs.UpdateProgress(ctx, job); err != nil {
		return nil, err
	}

	logger.Info(ctx, "sync item retried",
		"job_id", job.ID, "product_id", productID, "rate_version", job.RateVersion)
	return job, nil
}

// ActiveJob returns the pending or running job, or nil when none exists.
func (s *Service) ActiveJob(ctx context.Context) (*Job, error) {
	return s.jobs.FindActive(ctx)
}

// GetJob returns a job by id.
func (s *Service) GetJob(ctx context.Context, jobID id.ID) (*Job, error) {
	return s.jobs.GetByID(ctx, jobID)
}

// ListJobs returns the newest jobs.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.jobs.ListRecent(ctx, limit)
}

// RequeueStuck flips running jobs with stale heartbeats back to pending so
// the worker picks them up again. Called by the worker watchdog.
func (s *Service) RequeueStuck(ctx context.Context, stuckAfter time.Duration) (int, error) {
	n, err := s.jobs.RequeueStuck(ctx, s.now().Add(-stuckAfter))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Warn(ctx, "requeued stuck sync jobs", "count", n)
	}
	return n, nil
}

// syncProduct derives and persists per-currency prices for one product and
// all of its variants.
func (s *Service) syncProduct(ctx context.Context, p *product.Product, snap *rates.Snapshot, at time.Time) error {
	p.ApplyDerived(pricing.Derive(p.HomePricing(), snap), at)
	if err := s.products.UpdateDerivedPrices(ctx, p); err != nil {
		return err
	}

	variants, err := s.products.VariantsByProduct(ctx, p.ID)
	if err != nil {
		return err
	}
	if len(variants) == 0 {
		return nil
	}
	for _, v := range variants {
		v.ApplyDerived(pricing.Derive(v.HomePricing(), snap), at)
	}
	return s.products.BulkUpsertVariantPrices(ctx, variants)
}

// failJob marks the job failed after an infrastructure error.
func (s *Service) failJob(ctx context.Context, job *Job, cause error) error {
	job.Status = StatusFailed
	finishedAt := s.now()
	job.FinishedAt = &finishedAt
	job.Errors = append(job.Errors, ItemError{Message: cause.Error(), At: finishedAt})
	if len(job.Errors) > MaxErrors {
		job.Errors = job.Errors[len(job.Errors)-MaxErrors:]
	}
	if err := s.jobs.Finish(ctx, job); err != nil {
		logger.Error(ctx, "failed to persist failed sync job", "job_id", job.ID, "error", err)
	}
	logger.Error(ctx, "sync job failed", "job_id", job.ID, "error", cause)
	return apperror.NewSyncFailed(cause).WithDetail("jobId", job.ID.String())
}

// Package sync implements the batch job that recomputes denormalized
// per-currency prices across the catalog after an exchange rate update.
package sync

import (
	"context"
	"time"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/entity"
	"mercatus/internal/core/id"
)

// Status is the job lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further processing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Reason records what triggered the job.
type Reason string

const (
	ReasonRateUpdate Reason = "rate_update"
	ReasonManual     Reason = "manual"
)

const (
	// BatchSize is how many products one processing pass claims.
	BatchSize = 50

	// MaxErrors bounds the per-job error list. When the list is full the
	// oldest entries are dropped; counters keep the true totals.
	MaxErrors = 50
)

// ItemError is one failed product within a job.
type ItemError struct {
	ProductID id.ID     `json:"productId"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// Job is a price synchronization run. LastProcessedID is the resume
// cursor: products are walked in id order, so a job interrupted mid-run
// continues from the last batch boundary instead of starting over.
type Job struct {
	entity.BaseDocument

	Status      Status `db:"status" json:"status"`
	Reason      Reason `db:"reason" json:"reason"`
	TriggeredBy string `db:"triggered_by" json:"triggeredBy"`

	// RateVersion pins the snapshot every item of this job is priced
	// with, including targeted retries after completion.
	RateVersion string `db:"rate_version" json:"rateVersion"`

	TotalItems     int `db:"total_items" json:"totalItems"`
	ProcessedItems int `db:"processed_items" json:"processedItems"`
	SucceededItems int `db:"succeeded_items" json:"succeededItems"`
	FailedItems    int `db:"failed_items" json:"failedItems"`

	LastProcessedID id.ID       `db:"last_processed_id" json:"lastProcessedId"`
	Errors          []ItemError `db:"errors" json:"errors,omitempty"`

	StartedAt   *time.Time `db:"started_at" json:"startedAt,omitempty"`
	FinishedAt  *time.Time `db:"finished_at" json:"finishedAt,omitempty"`
	HeartbeatAt *time.Time `db:"heartbeat_at" json:"heartbeatAt,omitempty"`
}

// NewJob creates a pending job pinned to a rate version.
func NewJob(reason Reason, rateVersion, triggeredBy string) *Job {
	return &Job{
		BaseDocument: entity.NewBaseDocument(),
		Status:       StatusPending,
		Reason:       reason,
		RateVersion:  rateVersion,
		TriggeredBy:  triggeredBy,
	}
}

// Validate implements entity.Validatable interface.
func (j *Job) Validate(ctx context.Context) error {
	switch j.Status {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
	default:
		return apperror.NewValidation("unknown job status").
			WithDetail("status", string(j.Status))
	}
	if j.Reason != ReasonRateUpdate && j.Reason != ReasonManual {
		return apperror.NewValidation("unknown job reason").
			WithDetail("reason", string(j.Reason))
	}
	if j.RateVersion == "" {
		return apperror.NewValidation("job requires a rate version")
	}
	return nil
}

// RecordFailure counts a failed item and appends its error, evicting the
// oldest entry once the list is full.
func (j *Job) RecordFailure(productID id.ID, message string, at time.Time) {
	j.ProcessedItems++
	j.FailedItems++
	j.Errors = append(j.Errors, ItemError{ProductID: productID, Message: message, At: at})
	if len(j.Errors) > MaxErrors {
		j.Errors = j.Errors[len(j.Errors)-MaxErrors:]
	}
}

// RecordSuccess counts a successfully processed item.
func (j *Job) RecordSuccess() {
	j.ProcessedItems++
	j.SucceededItems++
}

// ResolveFailure converts a previously failed item into a success, used by
// targeted retries. Error entries for the product are pruned.
func (j *Job) ResolveFailure(productID id.ID) {
	if j.FailedItems > 0 {
		j.FailedItems--
		j.SucceededItems++
	}
	kept := j.Errors[:0]
	for _, e := range j.Errors {
		if e.ProductID != productID {
			kept = append(kept, e)
		}
	}
	j.Errors = kept
}

// FailedProduct reports whether the job's error list still names productID.
func (j *Job) FailedProduct(productID id.ID) bool {
	for _, e := range j.Errors {
		if e.ProductID == productID {
			return true
		}
	}
	return false
}

package dto

import (
	"time"

	syncjob "mercatus/internal/domain/sync"
)

// TriggerSyncRequest starts (or returns the already running) price sync.
type TriggerSyncRequest struct {
	Reason string `json:"reason"`
}

// SyncErrorResponse is one failed item.
type SyncErrorResponse struct {
	ProductID string    `json:"productId"`
	Message   string    `json:"message"`
	At        time.Time `json:"at"`
}

// SyncJobResponse is the wire shape of a job.
type SyncJobResponse struct {
	ID             string              `json:"id"`
	Status         string              `json:"status"`
	Reason         string              `json:"reason"`
	TriggeredBy    string              `json:"triggeredBy,omitempty"`
	RateVersion    string              `json:"rateVersion"`
	TotalItems     int                 `json:"totalItems"`
	ProcessedItems int                 `json:"processedItems"`
	SucceededItems int                 `json:"succeededItems"`
	FailedItems    int                 `json:"failedItems"`
	Errors         []SyncErrorResponse `json:"errors,omitempty"`
	StartedAt      *time.Time          `json:"startedAt,omitempty"`
	FinishedAt     *time.Time          `json:"finishedAt,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
}

// NewSyncJobResponse maps a job for the wire.
func NewSyncJobResponse(job *syncjob.Job) SyncJobResponse {
	out := SyncJobResponse{
		ID:             job.ID.String(),
		Status:         string(job.Status),
		Reason:         string(job.Reason),
		TriggeredBy:    job.TriggeredBy,
		RateVersion:    job.RateVersion,
		TotalItems:     job.TotalItems,
		ProcessedItems: job.ProcessedItems,
		SucceededItems: job.SucceededItems,
		FailedItems:    job.FailedItems,
		StartedAt:      job.StartedAt,
		FinishedAt:     job.FinishedAt,
		CreatedAt:      job.CreatedAt,
	}
	for _, e := range job.Errors {
		out.Errors = append(out.Errors, SyncErrorResponse{
			ProductID: e.ProductID.String(),
			Message:   e.Message,
			At:        e.At,
		})
	}
	return out
}

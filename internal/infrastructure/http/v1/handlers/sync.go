package handlers

import (
	"github.com/gin-gonic/gin"

	"mercatus/internal/core/apperror"
	"mercatus/internal/core/id"
	syncjob "mercatus/internal/domain/sync"
	"mercatus/internal/infrastructure/http/v1/dto"
)

// SyncHandler serves price synchronization job endpoints.
type SyncHandler struct {
	*BaseHandler
	service *syncjob.Service
}

// NewSyncHandler creates a sync handler.
func NewSyncHandler(service *syncjob.Service) *SyncHandler {
	return &SyncHandler{
		BaseHandler: NewBaseHandler(),
		service:     service,
	}
}

// Trigger starts a sync job, or returns the one already active.
// POST /api/v1/sync/jobs
func (h *SyncHandler) Trigger(c *gin.Context) {
	var req dto.TriggerSyncRequest
	if c.Request.ContentLength > 0 && !h.BindJSON(c, &req) {
		return
	}

	reason := syncjob.ReasonManual
	if req.Reason != "" {
		reason = syncjob.Reason(req.Reason)
	}

	job, err := h.service.Trigger(c.Request.Context(), reason, h.ActorID(c))
	if err != nil {
		h.Error(c, err)
		return
	}
	h.Accepted(c, dto.NewSyncJobResponse(job))
}

// List returns recent jobs.
// GET /api/v1/sync/jobs?limit=20
func (h *SyncHandler) List(c *gin.Context) {
	limit := h.ParseIntQuery(c, "limit", 20)

	jobs, err := h.service.ListJobs(c.Request.Context(), limit)
	if err != nil {
		h.Error(c, err)
		return
	}

	out := make([]dto.SyncJobResponse, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, dto.NewSyncJobResponse(job))
	}
	h.OK(c, out)
}

// Get returns one job with its error list.
// GET /api/v1/sync/jobs/:id
func (h *SyncHandler) Get(c *gin.Context) {
	jobID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid job id").WithDetail("id", c.Param("id")))
		return
	}

	job, err := h.service.GetJob(c.Request.Context(), jobID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewSyncJobResponse(job))
}

// RetryProduct reprocesses one failed item with the job's rate version.
// POST /api/v1/sync/jobs/:id/retry/:productId
func (h *SyncHandler) RetryProduct(c *gin.Context) {
	jobID, err := id.Parse(c.Param("id"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid job id").WithDetail("id", c.Param("id")))
		return
	}
	productID, err := id.Parse(c.Param("productId"))
	if err != nil {
		h.Error(c, apperror.NewValidation("invalid product id").WithDetail("productId", c.Param("productId")))
		return
	}

	job, err := h.service.RetryProduct(c.Request.Context(), jobID, productID)
	if err != nil {
		h.Error(c, err)
		return
	}
	h.OK(c, dto.NewSyncJobResponse(job))
}

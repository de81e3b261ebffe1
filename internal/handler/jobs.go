package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"memetic/internal/repository"
	"memetic/internal/scheduler"
)

type JobsHandler struct {
	Repo      repository.FailedJobRepository
	Scheduler *scheduler.Scheduler
}

func (h *JobsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/jobs")
	g.GET("/failed", h.listFailed)
	g.POST("/failed/:id/requeue", h.requeue)
	g.POST("/reconcile", h.reconcile)
	g.GET("/queue", h.queue)
}

// @Summary List parked resolution jobs
// @Tags jobs
// @Param status query string false "parked or requeued"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/jobs/failed [get]
func (h *JobsHandler) listFailed(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListFailedJobsParams{
		Limit:  limit,
		Offset: offset,
		Asc:    boolPtr(false),
	}
	if status := strQueryPtr(c, "status"); status != nil {
		lower := strings.ToLower(*status)
		params.Status = &lower
	}
	items, err := h.Repo.ListFailedJobs(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountFailedJobs(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Put a parked job back on the resolution queue
// @Tags jobs
// @Param id path string true "failed job id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Router /api/v1/jobs/failed/{id}/requeue [post]
func (h *JobsHandler) requeue(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid job id", nil)
		return
	}
	job, err := h.Scheduler.Requeue(c.Request.Context(), id)
	if err != nil {
		Error(c, statusOf(err), err.Error(), nil)
		return
	}
	Ok(c, job, nil)
}

// @Summary Enqueue every expired ACTIVE signal that has no job
// @Tags jobs
// @Success 200 {object} apiResponse
// @Router /api/v1/jobs/reconcile [post]
func (h *JobsHandler) reconcile(c *gin.Context) {
	if h.Scheduler == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	added, err := h.Scheduler.Reconcile(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"enqueued": added}, nil)
}

// @Summary Resolution queue depth
// @Tags jobs
// @Success 200 {object} apiResponse
// @Router /api/v1/jobs/queue [get]
func (h *JobsHandler) queue(c *gin.Context) {
	if h.Scheduler == nil || h.Scheduler.Queue == nil {
		Error(c, http.StatusInternalServerError, "scheduler unavailable", nil)
		return
	}
	n, err := h.Scheduler.Queue.Len(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"depth": n}, nil)
}

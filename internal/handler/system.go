package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"memetic/internal/ledger"
	"memetic/internal/repository"
	"memetic/internal/scheduler"
)

type SystemHandler struct {
	Repo   repository.Repository
	Ledger *ledger.Ledger
	Queue  scheduler.Queue
	Now    func() time.Time
}

func (h *SystemHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/system-state", h.state)
}

// @Summary Aggregate counters of the ledger and the chain records
// @Tags system
// @Success 200 {object} apiResponse
// @Router /api/v1/system-state [get]
func (h *SystemHandler) state(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	var day int64
	if h.Ledger != nil {
		day = h.Ledger.Day(now.Unix())
	}
	state, err := h.Repo.GetSystemState(c.Request.Context(), now.UTC(), day)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	var meta map[string]any
	if h.Queue != nil {
		if depth, err := h.Queue.Len(c.Request.Context()); err == nil {
			meta = map[string]any{"queue_depth": depth}
		}
	}
	Ok(c, state, meta)
}

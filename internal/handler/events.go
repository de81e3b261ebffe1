package handler

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"memetic/internal/events"
	"memetic/internal/ingest"
	"memetic/internal/repository"
	"memetic/internal/service"
)

const defaultMaxBatch = 500

type EventsHandler struct {
	Dispatcher *ingest.Dispatcher
	Settings   *service.SystemSettingsService
	Rejected   repository.RejectedEventRepository
	MaxBatch   int
}

func (h *EventsHandler) Register(r *gin.Engine) {
	r.POST("/api/v1/events", h.ingest)
	r.GET("/api/v1/events/rejected", h.listRejected)
}

type ingestRequest struct {
	Events []events.Envelope `json:"events"`
}

// @Summary Ingest a batch of chain events
// @Description Accepts a JSON array of events or {"events": [...]}. Events of one chain are applied in order; the first failure skips the rest of that chain and the response is 503 so the producer redelivers. Events the ledger refuses for good are reported as rejected and do not block the chain.
// @Tags events
// @Accept json
// @Param X-API-Key header string true "ingest api key"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 413 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/v1/events [post]
func (h *EventsHandler) ingest(c *gin.Context) {
	if h.Dispatcher == nil {
		Error(c, http.StatusInternalServerError, "dispatcher unavailable", nil)
		return
	}
	if !h.Settings.IsEnabled(c.Request.Context(), service.FeatureEventIngestHTTP, true) {
		Error(c, http.StatusServiceUnavailable, "event ingest disabled", nil)
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	envs, err := decodeBatch(raw)
	if err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	maxBatch := h.MaxBatch
	if maxBatch <= 0 {
		maxBatch = defaultMaxBatch
	}
	if len(envs) > maxBatch {
		Error(c, http.StatusRequestEntityTooLarge, "batch too large", map[string]any{"max_batch": maxBatch})
		return
	}

	results := h.Dispatcher.DispatchBatch(c.Request.Context(), envs)
	counts := map[string]any{"received": len(envs)}
	failed := 0
	for _, r := range results {
		n, _ := counts[r.Status].(int)
		counts[r.Status] = n + 1
		if r.Status == ingest.StatusFailed || r.Status == ingest.StatusSkipped {
			failed++
		}
	}
	if failed > 0 {
		c.JSON(http.StatusServiceUnavailable, apiResponse{
			Code:    http.StatusServiceUnavailable,
			Message: "some events were not applied",
			Data:    results,
			Meta:    counts,
		})
		return
	}
	Ok(c, results, counts)
}

// @Summary List events the ledger refused
// @Tags events
// @Param kind query string false "event kind"
// @Param signal_id query int false "signal id"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/events/rejected [get]
func (h *EventsHandler) listRejected(c *gin.Context) {
	if h.Rejected == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListRejectedEventsParams{
		Limit:    limit,
		Offset:   offset,
		Kind:     strQueryPtr(c, "kind"),
		SignalID: uint64QueryPtr(c, "signal_id"),
		Asc:      boolPtr(false),
	}
	items, err := h.Rejected.ListRejectedEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Rejected.CountRejectedEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

func decodeBatch(raw []byte) ([]events.Envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var envs []events.Envelope
		if err := json.Unmarshal(trimmed, &envs); err != nil {
			return nil, err
		}
		return envs, nil
	}
	var req ingestRequest
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return nil, err
	}
	return req.Events, nil
}

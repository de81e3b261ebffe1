package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"memetic/internal/repository"
)

var signalOrders = map[string]string{
	"signal_id":  "signal_id",
	"created_at": "created_at",
	"expires_at": "expires_at",
	"mfs_delta":  "mfs_delta",
}

type SignalHandler struct {
	Repo repository.Repository
}

func (h *SignalHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.GET("/signals", h.list)
	g.GET("/signals/:id", h.get)
	g.GET("/resolutions", h.listResolutions)
	g.GET("/corrections", h.listCorrections)
}

// @Summary List signals
// @Tags signals
// @Param fid query int false "author fid"
// @Param status query string false "ACTIVE, RESOLVED or MANUALLY_UPDATED"
// @Param token query string false "token address"
// @Param order_by query string false "signal_id, created_at, expires_at, mfs_delta"
// @Param asc query bool false "ascending order"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/signals [get]
func (h *SignalHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSignalsParams{
		Limit:   limit,
		Offset:  offset,
		FID:     uint64QueryPtr(c, "fid"),
		OrderBy: parseOrder(c.Query("order_by"), signalOrders),
		Asc:     boolPtr(strings.EqualFold(c.Query("asc"), "true")),
	}
	if status := strQueryPtr(c, "status"); status != nil {
		upper := strings.ToUpper(*status)
		params.Status = &upper
	}
	if token := strQueryPtr(c, "token"); token != nil {
		lower := strings.ToLower(*token)
		params.TokenAddress = &lower
	}
	items, err := h.Repo.ListSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSignals(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get a signal with its resolution and correction history
// @Tags signals
// @Param id path int true "signal id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/signals/{id} [get]
func (h *SignalHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id, ok := uint64Param(c, "id")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid signal id", nil)
		return
	}
	ctx := c.Request.Context()
	sig, err := h.Repo.GetSignal(ctx, id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if sig == nil {
		Error(c, http.StatusNotFound, "signal not found", nil)
		return
	}
	audit := repository.ListAuditParams{Limit: 100, SignalID: &id, Asc: boolPtr(true)}
	resolutions, err := h.Repo.ListSignalResolutions(ctx, audit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	corrections, err := h.Repo.ListSignalManualUpdates(ctx, audit)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	token, _ := h.Repo.GetToken(ctx, sig.TokenAddress)
	Ok(c, gin.H{
		"signal":      sig,
		"token":       token,
		"resolutions": resolutions,
		"corrections": corrections,
	}, nil)
}

// @Summary List resolution audit rows
// @Tags audit
// @Param signal_id query int false "signal id"
// @Param fid query int false "author fid"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/resolutions [get]
func (h *SignalHandler) listResolutions(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := auditParams(c)
	items, err := h.Repo.ListSignalResolutions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSignalResolutions(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

// @Summary List manual correction audit rows
// @Tags audit
// @Param signal_id query int false "signal id"
// @Param fid query int false "author fid"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/corrections [get]
func (h *SignalHandler) listCorrections(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	params := auditParams(c)
	items, err := h.Repo.ListSignalManualUpdates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSignalManualUpdates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(params.Limit, params.Offset, total))
}

func auditParams(c *gin.Context) repository.ListAuditParams {
	return repository.ListAuditParams{
		Limit:    intQuery(c, "limit", 50),
		Offset:   intQuery(c, "offset", 0),
		SignalID: uint64QueryPtr(c, "signal_id"),
		FID:      uint64QueryPtr(c, "fid"),
		Asc:      boolPtr(false),
	}
}

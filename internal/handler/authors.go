package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"memetic/internal/repository"
)

type AuthorHandler struct {
	Repo repository.Repository
}

func (h *AuthorHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/authors")
	g.GET("/top", h.top)
	g.GET("/:fid", h.get)
	g.GET("/:fid/signals", h.signals)
}

// @Summary Author score, stats and profile
// @Tags authors
// @Param fid path int true "author fid"
// @Success 200 {object} apiResponse
// @Router /api/v1/authors/{fid} [get]
func (h *AuthorHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	fid, ok := uint64Param(c, "fid")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid fid", nil)
		return
	}
	ctx := c.Request.Context()
	score, err := h.Repo.GetAuthorScore(ctx, fid)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	stats, err := h.Repo.GetFidStats(ctx, fid)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	profile, err := h.Repo.GetUser(ctx, fid)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if score == nil && stats == nil && profile == nil {
		Error(c, http.StatusNotFound, "author not found", nil)
		return
	}
	total := decimal.Zero
	if score != nil {
		total = score.TotalMFS
	}
	Ok(c, gin.H{
		"fid":       fid,
		"total_mfs": total.String(),
		"score":     score,
		"stats":     stats,
		"profile":   profile,
	}, nil)
}

// @Summary Signals of one author
// @Tags authors
// @Param fid path int true "author fid"
// @Param status query string false "signal status"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/authors/{fid}/signals [get]
func (h *AuthorHandler) signals(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	fid, ok := uint64Param(c, "fid")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid fid", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSignalsParams{
		Limit:   limit,
		Offset:  offset,
		FID:     &fid,
		OrderBy: "created_at",
		Asc:     boolPtr(false),
	}
	if status := strQueryPtr(c, "status"); status != nil {
		upper := strings.ToUpper(*status)
		params.Status = &upper
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

// @Summary Leaderboard by total MFS
// @Tags authors
// @Param limit query int false "number of authors"
// @Success 200 {object} apiResponse
// @Router /api/v1/authors/top [get]
func (h *AuthorHandler) top(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	items, err := h.Repo.ListTopAuthors(c.Request.Context(), intQuery(c, "limit", 20))
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, nil)
}

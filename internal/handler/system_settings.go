package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"memetic/internal/service"
)

// SystemSettingsHandler exposes the feature switches. Other settings keys
// are not writable over HTTP.
type SystemSettingsHandler struct {
	Settings *service.SystemSettingsService
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/system-settings/switches")
	g.GET("", h.listSwitches)
	g.GET("/:name", h.getSwitch)
	g.PUT("/:name", h.putSwitch)
}

// @Summary Feature switches with their effective value
// @Tags settings
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings/switches [get]
func (h *SystemSettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	Ok(c, h.Settings.Switches(c.Request.Context()), nil)
}

func (h *SystemSettingsHandler) getSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "invalid switch name", nil)
		return
	}
	sw, err := h.Settings.Switch(c.Request.Context(), name)
	if err != nil {
		switchError(c, err)
		return
	}
	Ok(c, sw, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

// @Summary Turn a feature switch on or off
// @Tags settings
// @Param name path string true "switch name"
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings/switches/{name} [put]
func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	name := strings.TrimSpace(c.Param("name"))
	if name == "" {
		Error(c, http.StatusBadRequest, "invalid switch name", nil)
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	sw, err := h.Settings.SetSwitch(c.Request.Context(), name, *req.Enabled)
	if err != nil {
		switchError(c, err)
		return
	}
	Ok(c, sw, nil)
}

func switchError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrUnknownSwitch) {
		Error(c, http.StatusNotFound, "unknown switch", nil)
		return
	}
	Error(c, http.StatusBadGateway, err.Error(), nil)
}

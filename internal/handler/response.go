package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"memetic/internal/ledger"
	"memetic/internal/scheduler"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// statusOf maps domain errors to HTTP statuses; anything else is a 502.
func statusOf(err error) int {
	switch {
	case errors.Is(err, ledger.ErrSignalNotFound), errors.Is(err, scheduler.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrSignalNotYetResolved),
		errors.Is(err, ledger.ErrAlreadyCorrected),
		errors.Is(err, scheduler.ErrJobNotParked):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrReasonRequired), errors.Is(err, ledger.ErrInvalidSignal):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrLedgerConflict):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

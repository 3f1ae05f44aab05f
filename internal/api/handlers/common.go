package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"emotion-worker-go/internal/logging"
	"emotion-worker-go/internal/services/pipeline"
	"emotion-worker-go/internal/services/scheduler"
	"emotion-worker-go/internal/services/storage"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error     string `json:"error" example:"camera not found: 7"`
	RequestID string `json:"request_id,omitempty"`
}

// SuccessResponse is returned by operations without a richer body
type SuccessResponse struct {
	Success bool   `json:"success" example:"true"`
	Message string `json:"message,omitempty"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrCameraNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidCamera),
		errors.Is(err, pipeline.ErrInvalidImage),
		errors.Is(err, scheduler.ErrInvalidTrigger),
		errors.Is(err, storage.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, pipeline.ErrActivationRejected),
		errors.Is(err, pipeline.ErrCaptureFailed),
		errors.Is(err, pipeline.ErrShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	ev := logging.Warn(c)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		ev = logging.Error(c)
	}
	ev.Err(err).Str("path", c.FullPath()).Int("status", status).Msg("request_failed")

	c.JSON(status, ErrorResponse{Error: err.Error(), RequestID: c.GetString(logging.KeyRequestID)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, RequestID: c.GetString(logging.KeyRequestID)})
}

// cameraID parses the :id path parameter
func cameraID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "camera id must be a positive integer")
		return 0, false
	}
	return id, true
}

// optionalInt64 parses an optional query parameter, defaulting to zero
func optionalInt64(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		badRequest(c, name+" must be a non-negative integer")
		return 0, false
	}
	return v, true
}

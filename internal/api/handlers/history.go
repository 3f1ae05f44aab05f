package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"emotion-worker-go/internal/logging"
	"emotion-worker-go/internal/models"
)

// HistoryService is the pipeline surface used by the history endpoints
type HistoryService interface {
	History(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, int, error)
	ClearHistory(ctx context.Context, cameraID int64, deleteFiles bool) (int, error)
}

// ArtifactReader serves persisted artifacts by key
type ArtifactReader interface {
	Read(ctx context.Context, key string) ([]byte, string, error)
}

type HistoryHandler struct {
	history   HistoryService
	artifacts ArtifactReader
}

func NewHistoryHandler(history HistoryService, artifacts ArtifactReader) *HistoryHandler {
	return &HistoryHandler{history: history, artifacts: artifacts}
}

// HistoryResponse is one page of detections, newest first
type HistoryResponse struct {
	Records []models.HistoryRecord `json:"records"`
	Total   int                    `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// ListHistory godoc
// @Summary Detection history
// @Tags history
// @Produce json
// @Param camera_id query int false "Camera ID, all cameras when omitted"
// @Param limit query int false "Page size" default(10)
// @Param offset query int false "Offset" default(0)
// @Success 200 {object} HistoryResponse
// @Router /history [get]
func (h *HistoryHandler) ListHistory(c *gin.Context) {
	camID, ok := optionalInt64(c, "camera_id")
	if !ok {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		badRequest(c, "limit must be a positive integer")
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "offset must be a non-negative integer")
		return
	}

	filter := models.HistoryFilter{CameraID: camID, Limit: limit, Offset: offset}
	records, total, err := h.history.History(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if records == nil {
		records = []models.HistoryRecord{}
	}
	c.JSON(http.StatusOK, HistoryResponse{Records: records, Total: total, Limit: limit, Offset: offset})
}

// ClearHistory godoc
// @Summary Clear detection history
// @Description Requires confirm=true. delete_files also removes the stored images and result documents.
// @Tags history
// @Param camera_id query int false "Camera ID, all cameras when omitted"
// @Param confirm query bool true "Must be true"
// @Param delete_files query bool false "Remove artifacts too"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} ErrorResponse
// @Router /history [delete]
func (h *HistoryHandler) ClearHistory(c *gin.Context) {
	if !strings.EqualFold(c.Query("confirm"), "true") {
		badRequest(c, "confirm=true is required to clear history")
		return
	}
	camID, ok := optionalInt64(c, "camera_id")
	if !ok {
		return
	}
	deleteFiles := strings.EqualFold(c.Query("delete_files"), "true")

	n, err := h.history.ClearHistory(c.Request.Context(), camID, deleteFiles)
	if err != nil {
		respondError(c, err)
		return
	}
	logging.Info(c).Int64("camera_id", camID).Int("records", n).Msg("history_clear_requested")
	c.JSON(http.StatusOK, gin.H{"success": true, "deleted": n, "files_deleted": deleteFiles})
}

// GetArtifact godoc
// @Summary Fetch a stored artifact
// @Tags history
// @Param key path string true "Artifact key, e.g. camera1/20240101_120000_processed.jpg"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /artifacts/{key} [get]
func (h *HistoryHandler) GetArtifact(c *gin.Context) {
	key := strings.TrimPrefix(c.Param("key"), "/")
	data, contentType, err := h.artifacts.Read(c.Request.Context(), key)
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

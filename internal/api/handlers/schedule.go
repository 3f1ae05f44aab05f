package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"emotion-worker-go/internal/logging"
	"emotion-worker-go/internal/models"
)

// ScheduleService is the pipeline surface used by the schedule endpoints
type ScheduleService interface {
	SetSchedule(ctx context.Context, id int64, trigger models.TriggerSpec) error
	ClearSchedule(ctx context.Context, id int64) error
	GetSchedule(id int64) models.ScheduleStatus
	ListSchedules() []models.ScheduleStatus
}

type ScheduleHandler struct {
	schedules ScheduleService
}

func NewScheduleHandler(schedules ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// ScheduleRequest sets a capture trigger. Kind is interval or calendar;
// calendar hour and minute accept comma lists and a-b ranges.
type ScheduleRequest struct {
	Kind            string `json:"kind" binding:"required" example:"calendar"`
	IntervalMinutes int    `json:"interval_minutes,omitempty" example:"15"`
	Hour            string `json:"hour,omitempty" example:"8,12-14"`
	Minute          string `json:"minute,omitempty" example:"30"`
}

// SetSchedule godoc
// @Summary Set the capture schedule of a camera
// @Description Replaces any existing trigger for the camera
// @Tags schedules
// @Accept json
// @Produce json
// @Param id path int true "Camera ID"
// @Param request body ScheduleRequest true "Trigger"
// @Success 200 {object} models.ScheduleStatus
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id}/schedule [put]
func (h *ScheduleHandler) SetSchedule(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	kind, err := models.ParseTriggerKind(req.Kind)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	trigger := models.TriggerSpec{Kind: kind, IntervalMinutes: req.IntervalMinutes, Hour: req.Hour, Minute: req.Minute}
	if err := h.schedules.SetSchedule(c.Request.Context(), id, trigger); err != nil {
		respondError(c, err)
		return
	}
	logging.Info(c).Int64("camera_id", id).Str("kind", string(kind)).Msg("schedule_set")
	c.JSON(http.StatusOK, h.schedules.GetSchedule(id))
}

// ClearSchedule godoc
// @Summary Remove the capture schedule of a camera
// @Tags schedules
// @Param id path int true "Camera ID"
// @Success 200 {object} SuccessResponse
// @Router /cameras/{id}/schedule [delete]
func (h *ScheduleHandler) ClearSchedule(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	if err := h.schedules.ClearSchedule(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "schedule cleared"})
}

// GetSchedule godoc
// @Summary Schedule status of a camera
// @Tags schedules
// @Param id path int true "Camera ID"
// @Success 200 {object} models.ScheduleStatus
// @Router /cameras/{id}/schedule [get]
func (h *ScheduleHandler) GetSchedule(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.schedules.GetSchedule(id))
}

// ListSchedules godoc
// @Summary All live schedules
// @Tags schedules
// @Success 200 {array} models.ScheduleStatus
// @Router /schedules [get]
func (h *ScheduleHandler) ListSchedules(c *gin.Context) {
	c.JSON(http.StatusOK, h.schedules.ListSchedules())
}

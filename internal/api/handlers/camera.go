package handlers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"emotion-worker-go/internal/logging"
	"emotion-worker-go/internal/models"
)

const maxUploadBytes = 10 << 20

// CameraService is the pipeline surface used by the camera endpoints
type CameraService interface {
	ListCameras(ctx context.Context) ([]models.Camera, error)
	GetCamera(ctx context.Context, id int64) (*models.Camera, error)
	CreateCamera(ctx context.Context, camera *models.Camera) error
	UpdateCamera(ctx context.Context, camera *models.Camera) error
	DeleteCamera(ctx context.Context, id int64) error
	ActivateCamera(ctx context.Context, id int64) error
	DeactivateCamera(ctx context.Context, id int64) error
	Status(ctx context.Context, id int64) (*models.CameraStatusResponse, error)
	RunOnce(ctx context.Context, id int64) (*models.DetectionResult, *models.ArtifactPaths, error)
	ProcessUpload(ctx context.Context, id int64, data []byte) (*models.DetectionResult, *models.ArtifactPaths, error)
	Reachable(ctx context.Context, id int64) (bool, error)
}

// PreviewSource serves the latest annotated JPEG of a camera
type PreviewSource interface {
	Latest(cameraID int64) ([]byte, bool)
	StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, cameraID int64)
}

type CameraHandler struct {
	cameras CameraService
	preview PreviewSource
}

func NewCameraHandler(cameras CameraService, preview PreviewSource) *CameraHandler {
	return &CameraHandler{cameras: cameras, preview: preview}
}

// CameraRequest creates or updates a camera
type CameraRequest struct {
	Name               string `json:"name" binding:"required" example:"lobby"`
	Location           string `json:"location,omitempty" example:"ground floor"`
	Transport          string `json:"transport" example:"http-stream"`
	Address            string `json:"address,omitempty" example:"192.168.1.20"`
	Port               int    `json:"port,omitempty" example:"4747"`
	StreamURL          string `json:"stream_url,omitempty"`
	DeviceIndex        int    `json:"device_index" example:"0"`
	SamplingIntervalMs int64  `json:"sampling_interval_ms,omitempty" example:"1000"`
}

func (r CameraRequest) toCamera(id int64) *models.Camera {
	return &models.Camera{
		ID:               id,
		Name:             r.Name,
		Location:         r.Location,
		Transport:        models.TransportKind(r.Transport),
		Address:          r.Address,
		Port:             r.Port,
		StreamURL:        r.StreamURL,
		DeviceIndex:      r.DeviceIndex,
		SamplingInterval: time.Duration(r.SamplingIntervalMs) * time.Millisecond,
	}
}

// DetectionResponse is returned by run-once and upload processing
type DetectionResponse struct {
	Success bool                    `json:"success"`
	Result  *models.DetectionResult `json:"result"`
	Paths   *models.ArtifactPaths   `json:"paths,omitempty"`
	Warning string                  `json:"warning,omitempty"`
}

// ListCameras godoc
// @Summary List cameras
// @Tags cameras
// @Produce json
// @Success 200 {array} models.Camera
// @Router /cameras [get]
func (h *CameraHandler) ListCameras(c *gin.Context) {
	cams, err := h.cameras.ListCameras(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if cams == nil {
		cams = []models.Camera{}
	}
	c.JSON(http.StatusOK, cams)
}

// GetCamera godoc
// @Summary Get a camera
// @Tags cameras
// @Produce json
// @Param id path int true "Camera ID"
// @Success 200 {object} models.Camera
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id} [get]
func (h *CameraHandler) GetCamera(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	cam, err := h.cameras.GetCamera(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cam)
}

// CreateCamera godoc
// @Summary Register a camera
// @Tags cameras
// @Accept json
// @Produce json
// @Param request body CameraRequest true "Camera configuration"
// @Success 201 {object} models.Camera
// @Failure 400 {object} ErrorResponse
// @Router /cameras [post]
func (h *CameraHandler) CreateCamera(c *gin.Context) {
	var req CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cam := req.toCamera(0)
	if err := h.cameras.CreateCamera(c.Request.Context(), cam); err != nil {
		respondError(c, err)
		return
	}
	logging.Info(c).Int64("camera_id", cam.ID).Str("transport", string(cam.Transport)).Msg("camera_created")
	c.JSON(http.StatusCreated, cam)
}

// UpdateCamera godoc
// @Summary Update a camera
// @Description A running camera is restarted with the new settings
// @Tags cameras
// @Accept json
// @Produce json
// @Param id path int true "Camera ID"
// @Param request body CameraRequest true "Camera configuration"
// @Success 200 {object} models.Camera
// @Failure 400 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id} [put]
func (h *CameraHandler) UpdateCamera(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	var req CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	cam := req.toCamera(id)
	if err := h.cameras.UpdateCamera(c.Request.Context(), cam); err != nil {
		respondError(c, err)
		return
	}
	updated, err := h.cameras.GetCamera(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteCamera godoc
// @Summary Remove a camera
// @Tags cameras
// @Param id path int true "Camera ID"
// @Success 200 {object} SuccessResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id} [delete]
func (h *CameraHandler) DeleteCamera(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	if err := h.cameras.DeleteCamera(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Success: true, Message: "camera deleted"})
}

// Activate godoc
// @Summary Activate a camera
// @Description Opens the camera and starts periodic emotion sampling
// @Tags cameras
// @Param id path int true "Camera ID"
// @Success 200 {object} models.CameraStatusResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /cameras/{id}/activate [post]
func (h *CameraHandler) Activate(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	if err := h.cameras.ActivateCamera(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.writeStatus(c, id)
}

// Deactivate godoc
// @Summary Deactivate a camera
// @Tags cameras
// @Param id path int true "Camera ID"
// @Success 200 {object} models.CameraStatusResponse
// @Router /cameras/{id}/deactivate [post]
func (h *CameraHandler) Deactivate(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	if err := h.cameras.DeactivateCamera(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	h.writeStatus(c, id)
}

// GetCameraStatus godoc
// @Summary Camera session and sampling status
// @Tags cameras
// @Param id path int true "Camera ID"
// @Success 200 {object} models.CameraStatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id}/status [get]
func (h *CameraHandler) GetCameraStatus(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	h.writeStatus(c, id)
}

func (h *CameraHandler) writeStatus(c *gin.Context, id int64) {
	st, err := h.cameras.Status(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// RunOnce godoc
// @Summary Analyze one frame now
// @Description Captures a frame, runs emotion detection and persists the artifacts
// @Tags detection
// @Param id path int true "Camera ID"
// @Success 200 {object} DetectionResponse
// @Failure 404 {object} ErrorResponse
// @Failure 503 {object} ErrorResponse
// @Router /cameras/{id}/run-once [post]
func (h *CameraHandler) RunOnce(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	result, paths, err := h.cameras.RunOnce(c.Request.Context(), id)
	h.writeDetection(c, result, paths, err)
}

// ProcessUpload godoc
// @Summary Analyze an uploaded image
// @Tags detection
// @Accept multipart/form-data
// @Param id path int true "Camera ID"
// @Param image formData file true "JPEG or PNG image"
// @Success 200 {object} DetectionResponse
// @Failure 400 {object} ErrorResponse
// @Router /cameras/{id}/process [post]
func (h *CameraHandler) ProcessUpload(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		badRequest(c, "multipart field 'image' is required")
		return
	}
	if fh.Size > maxUploadBytes {
		badRequest(c, "image exceeds 10MB")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	result, paths, err := h.cameras.ProcessUpload(c.Request.Context(), id, data)
	h.writeDetection(c, result, paths, err)
}

// writeDetection reports a result even when only persistence failed
func (h *CameraHandler) writeDetection(c *gin.Context, result *models.DetectionResult, paths *models.ArtifactPaths, err error) {
	if result == nil {
		respondError(c, err)
		return
	}
	resp := DetectionResponse{Success: true, Result: result, Paths: paths}
	if err != nil {
		logging.Warn(c).Err(err).Int64("camera_id", result.CameraID).Msg("detection_not_persisted")
		resp.Warning = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// Reachable godoc
// @Summary Test the camera connection
// @Tags cameras
// @Param id path int true "Camera ID"
// @Success 200 {object} map[string]interface{}
// @Router /cameras/{id}/reachable [get]
func (h *CameraHandler) Reachable(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	reachable, err := h.cameras.Reachable(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"camera_id": id, "reachable": reachable})
}

// GetLatestFrame godoc
// @Summary Latest annotated frame
// @Tags stream
// @Produce image/jpeg
// @Param id path int true "Camera ID"
// @Success 200 {file} binary
// @Failure 404 {object} ErrorResponse
// @Router /cameras/{id}/frame [get]
func (h *CameraHandler) GetLatestFrame(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	jpeg, ok := h.preview.Latest(id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no annotated frame yet", RequestID: c.GetString(logging.KeyRequestID)})
		return
	}
	c.Header("Cache-Control", "no-cache")
	c.Data(http.StatusOK, "image/jpeg", jpeg)
}

// StreamMJPEG godoc
// @Summary Annotated MJPEG preview
// @Tags stream
// @Produce multipart/x-mixed-replace
// @Param id path int true "Camera ID"
// @Router /cameras/{id}/stream [get]
func (h *CameraHandler) StreamMJPEG(c *gin.Context) {
	id, ok := cameraID(c)
	if !ok {
		return
	}
	h.preview.StreamMJPEGHTTP(c.Writer, c.Request, id)
}

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"emotion-worker-go/internal/config"
)

// Pinger is any dependency whose health can be probed
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	cfg       *config.Config
	checks    map[string]Pinger
	startedAt time.Time
	timeout   time.Duration
}

func NewHealthHandler(cfg *config.Config, startedAt time.Time, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{cfg: cfg, checks: checks, startedAt: startedAt, timeout: 2 * time.Second}
}

type HealthResponse struct {
	Status     string            `json:"status" example:"healthy"`
	WorkerID   string            `json:"worker_id" example:"emotion-worker-1"`
	Components map[string]string `json:"components,omitempty"`
}

type WorkerInfoResponse struct {
	WorkerID     string        `json:"worker_id" example:"emotion-worker-1"`
	Status       string        `json:"status" example:"running"`
	Version      string        `json:"version" example:"1.0.0"`
	Environment  string        `json:"environment" example:"development"`
	StartTime    time.Time     `json:"start_time"`
	Capabilities []string      `json:"capabilities"`
	Config       WorkerSummary `json:"config"`
}

type WorkerSummary struct {
	DetectionEnabled bool          `json:"detection_enabled"`
	SamplingInterval time.Duration `json:"sampling_interval"`
	CaptureFPS       int           `json:"capture_fps"`
	AIBackend        string        `json:"ai_backend"`
	StorageBackend   string        `json:"storage_backend"`
	Persistent       bool          `json:"persistent"`
}

// @Summary Health check
// @Description Probes the store and analyzer. Any failing component reports degraded with 503.
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "healthy", WorkerID: h.cfg.WorkerID, Components: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check.Ping(ctx); err != nil {
			resp.Components[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Components[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "healthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

// @Summary Worker information
// @Description Basic worker information and capabilities
// @Tags health
// @Produce json
// @Success 200 {object} WorkerInfoResponse
// @Router / [get]
func (h *HealthHandler) WorkerInfo(c *gin.Context) {
	capabilities := []string{"frame_sampling", "emotion_detection", "scheduled_capture", "mjpeg_preview"}
	if h.cfg.NatsEnabled || h.cfg.MQTTEnabled || h.cfg.RedisEnabled {
		capabilities = append(capabilities, "result_publishing")
	}

	c.JSON(http.StatusOK, WorkerInfoResponse{
		WorkerID:     h.cfg.WorkerID,
		Status:       "running",
		Version:      h.cfg.Version,
		Environment:  h.cfg.Environment,
		StartTime:    h.startedAt,
		Capabilities: capabilities,
		Config: WorkerSummary{
			DetectionEnabled: h.cfg.DetectionEnabled,
			SamplingInterval: h.cfg.SamplingInterval,
			CaptureFPS:       h.cfg.CaptureFPS,
			AIBackend:        h.cfg.AIBackend,
			StorageBackend:   h.cfg.StorageBackend,
			Persistent:       h.cfg.DatabaseURL != "",
		},
	})
}

package frameprocessing

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

type HTTPConfig struct {
	BaseURL  string
	Timeout  time.Duration
	Retries  int
	Detector string
}

// HTTPAnalyzer talks to a DeepFace-style REST API
type HTTPAnalyzer struct {
	client *resty.Client
	enc    Encoder
	cfg    HTTPConfig
}

type analyzeRequest struct {
	Img              string   `json:"img"`
	Actions          []string `json:"actions"`
	EnforceDetection bool     `json:"enforce_detection"`
	DetectorBackend  string   `json:"detector_backend,omitempty"`
}

func NewHTTPAnalyzer(cfg HTTPConfig, enc Encoder) *HTTPAnalyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPAnalyzer{client: client, enc: enc, cfg: cfg}
}

func (h *HTTPAnalyzer) Analyze(ctx context.Context, frame *models.Frame) ([]models.Face, error) {
	jpeg, err := h.enc.Encode(frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	req := analyzeRequest{
		Img:              "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg),
		Actions:          []string{"emotion"},
		EnforceDetection: false,
		DetectorBackend:  h.cfg.Detector,
	}

	resp, err := h.client.R().
		SetContext(ctx).
		SetBody(req).
		Post("/analyze")
	if err != nil {
		return nil, fmt.Errorf("analyzer request failed: %w", err)
	}
	if resp.IsError() {
		log.Warn().
			Int64("camera_id", frame.CameraID).
			Int("status_code", resp.StatusCode()).
			Msg("analyzer_http_error")
		return nil, fmt.Errorf("analyzer returned status %d", resp.StatusCode())
	}

	var payload any
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal analyzer response: %w", err)
	}
	return parseResults(payload, frame.Width, frame.Height)
}

// Healthy probes the analyzer root
func (h *HTTPAnalyzer) Healthy(ctx context.Context) error {
	resp, err := h.client.R().SetContext(ctx).Get("/")
	if err != nil {
		return fmt.Errorf("analyzer unreachable: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("analyzer unhealthy: status %d", resp.StatusCode())
	}
	return nil
}

func (h *HTTPAnalyzer) Close() error {
	return nil
}

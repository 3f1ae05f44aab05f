package frameprocessing

import (
	"context"
	"fmt"
	"strings"

	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/models"
)

// Encoder turns a BGR24 frame into JPEG bytes for the analyzer request
type Encoder interface {
	Encode(frame *models.Frame) ([]byte, error)
}

// Analyzer is a remote face/emotion analyzer
type Analyzer interface {
	Analyze(ctx context.Context, frame *models.Frame) ([]models.Face, error)
	Healthy(ctx context.Context) error
	Close() error
}

// NewAnalyzer builds the analyzer selected by AI_BACKEND
func NewAnalyzer(cfg *config.Config, enc Encoder) (Analyzer, error) {
	switch strings.ToLower(cfg.AIBackend) {
	case "grpc":
		return NewGRPCAnalyzer(GRPCConfig{
			Endpoint: cfg.AIGRPCEndpoint,
			Timeout:  cfg.AITimeout,
			Detector: cfg.AIDetector,
		}, enc)
	case "http", "":
		return NewHTTPAnalyzer(HTTPConfig{
			BaseURL:  cfg.AIHTTPEndpoint,
			Timeout:  cfg.AITimeout,
			Retries:  cfg.AIRetries,
			Detector: cfg.AIDetector,
		}, enc), nil
	default:
		return nil, fmt.Errorf("unknown analyzer backend %q", cfg.AIBackend)
	}
}

// parseResults converts a DeepFace-style analysis payload into faces. Both the
// bare list form and {"results": [...]} are accepted. With face enforcement off
// the analyzer reports a whole-frame region with zero confidence when it found
// nothing; such entries are dropped.
func parseResults(payload any, width, height int) ([]models.Face, error) {
	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		if errMsg, ok := v["error"].(string); ok && errMsg != "" {
			return nil, fmt.Errorf("analyzer error: %s", errMsg)
		}
		switch r := v["results"].(type) {
		case []any:
			items = r
		case nil:
			if _, ok := v["emotion"]; ok {
				items = []any{v}
			}
		default:
			return nil, fmt.Errorf("unexpected results type %T", r)
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected analyzer payload %T", payload)
	}

	faces := make([]models.Face, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		face := models.Face{Scores: models.Scores{}}
		if em, ok := m["emotion"].(map[string]any); ok {
			for k, raw := range em {
				e := models.Emotion(strings.ToLower(k))
				if !e.IsValid() {
					continue
				}
				if f, ok := toFloat(raw); ok {
					face.Scores[e] = f
				}
			}
		}
		if region, ok := m["region"].(map[string]any); ok {
			face.Box = models.Box{
				X: toInt(region["x"]),
				Y: toInt(region["y"]),
				W: toInt(region["w"]),
				H: toInt(region["h"]),
			}
		}
		conf, hasConf := toFloat(m["face_confidence"])
		face.Confidence = conf
		if hasConf && conf <= 0 && coversFrame(face.Box, width, height) {
			continue
		}
		faces = append(faces, face)
	}
	return faces, nil
}

func coversFrame(b models.Box, width, height int) bool {
	if width <= 0 || height <= 0 {
		return b.X == 0 && b.Y == 0
	}
	return b.X <= 0 && b.Y <= 0 && b.W >= width && b.H >= height
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) int {
	f, _ := toFloat(v)
	return int(f)
}

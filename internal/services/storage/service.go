package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/models"
)

var (
	ErrInvalidKey = errors.New("invalid artifact key")
	ErrNotFound   = errors.New("artifact not found")
)

// Encoder turns a BGR24 frame into JPEG bytes
type Encoder interface {
	Encode(frame *models.Frame) ([]byte, error)
}

// Store persists the three artifacts of a detection under camera{id}/{timestamp}
type Store interface {
	Save(ctx context.Context, cameraID int64, raw, annotated *models.Frame, result *models.DetectionResult) (*models.ArtifactPaths, error)
	Delete(ctx context.Context, paths models.ArtifactPaths) error
	Read(ctx context.Context, key string) ([]byte, string, error)
}

// New builds the store selected by STORAGE_BACKEND
func New(ctx context.Context, cfg *config.Config, enc Encoder) (Store, error) {
	switch strings.ToLower(cfg.StorageBackend) {
	case "fs", "":
		return NewFSStore(cfg.ImagesDir, enc)
	case "minio":
		return NewMinioStore(ctx, MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		}, enc)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// artifact is one encoded object ready to be written
type artifact struct {
	key         string
	data        []byte
	contentType string
}

// resultDocument is the persisted JSON form of a detection
type resultDocument struct {
	ID             string                 `json:"id"`
	CameraID       int64                  `json:"camera_id"`
	Dominant       models.Emotion         `json:"dominant_emotion"`
	Scores         models.Scores          `json:"emotion"`
	Percent        map[models.Emotion]int `json:"emotion_percent"`
	Faces          []models.Face          `json:"faces"`
	Fallback       models.FallbackKind    `json:"fallback,omitempty"`
	FallbackReason string                 `json:"fallback_reason,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	ImagePath      string                 `json:"image_path"`
	ProcessedPath  string                 `json:"processed_image_path"`
}

// keyTaken reports whether an artifact key already exists in the backend
type keyTaken func(ctx context.Context, key string) (bool, error)

// maxKeyAttempts bounds the suffix search for one save
const maxKeyAttempts = 1000

// encodeArtifacts reserves a base key not yet present in the backend and
// encodes everything before any write
func encodeArtifacts(ctx context.Context, keys *keyReserver, taken keyTaken, enc Encoder, cameraID int64, raw, annotated *models.Frame, result *models.DetectionResult) ([]artifact, *models.ArtifactPaths, error) {
	if result == nil {
		return nil, nil, errors.New("nil detection result")
	}
	if annotated == nil {
		annotated = raw
	}

	rawJPEG, err := enc.Encode(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("encode raw frame: %w", err)
	}
	annotatedJPEG, err := enc.Encode(annotated)
	if err != nil {
		return nil, nil, fmt.Errorf("encode annotated frame: %w", err)
	}

	ts := result.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	base, err := freeKey(ctx, keys, taken, cameraID, ts)
	if err != nil {
		return nil, nil, err
	}
	paths := &models.ArtifactPaths{
		Raw:       base + rawSuffix,
		Annotated: base + annotatedSuffix,
		Result:    base + resultSuffix,
	}

	faces := result.Faces
	if faces == nil {
		faces = []models.Face{}
	}
	doc, err := json.MarshalIndent(resultDocument{
		ID:             result.ID,
		CameraID:       cameraID,
		Dominant:       result.Dominant,
		Scores:         result.Scores,
		Percent:        result.Percent,
		Faces:          faces,
		Fallback:       result.Fallback,
		FallbackReason: result.FallbackReason,
		Timestamp:      ts,
		ImagePath:      paths.Raw,
		ProcessedPath:  paths.Annotated,
	}, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal result: %w", err)
	}

	return []artifact{
		{key: paths.Raw, data: rawJPEG, contentType: "image/jpeg"},
		{key: paths.Annotated, data: annotatedJPEG, contentType: "image/jpeg"},
		{key: paths.Result, data: doc, contentType: "application/json"},
	}, paths, nil
}

// freeKey skips reserved keys whose raw artifact survives from an earlier
// save, such as one made before a restart
func freeKey(ctx context.Context, keys *keyReserver, taken keyTaken, cameraID int64, ts time.Time) (string, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		base := keys.reserve(cameraID, ts)
		used, err := taken(ctx, base+rawSuffix)
		if err != nil {
			return "", fmt.Errorf("check key %s: %w", base, err)
		}
		if !used {
			return base, nil
		}
	}
	return "", fmt.Errorf("no free artifact key for camera %d at %s", cameraID, ts.Format(timestampLayout))
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

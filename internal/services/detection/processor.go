package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

// ArtifactStore persists the raw frame, annotated frame and structured result.
// It must accept concurrent saves for the same camera.
type ArtifactStore interface {
	Save(ctx context.Context, cameraID int64, raw, annotated *models.Frame, result *models.DetectionResult) (*models.ArtifactPaths, error)
}

// HistoryRecorder keeps a queryable record of each persisted detection
type HistoryRecorder interface {
	InsertHistory(ctx context.Context, rec *models.HistoryRecord) error
}

// Processor runs a detection cycle and persists its artifacts
type Processor struct {
	cycle   *Cycle
	store   ArtifactStore
	history HistoryRecorder
}

func NewProcessor(cycle *Cycle, store ArtifactStore, history HistoryRecorder) *Processor {
	return &Processor{cycle: cycle, store: store, history: history}
}

// Process always returns a result. A non-nil error means persistence failed.
func (p *Processor) Process(ctx context.Context, frame *models.Frame) (*models.DetectionResult, *models.ArtifactPaths, error) {
	start := time.Now()
	result := p.cycle.Run(ctx, frame)

	raw := frame
	if !raw.Valid() {
		raw = result.Annotated
	}
	paths, err := p.store.Save(ctx, result.CameraID, raw, result.Annotated, result)
	if err != nil {
		log.Error().Err(err).Int64("camera_id", result.CameraID).Msg("artifact_save_failed")
		return result, nil, fmt.Errorf("persist artifacts: %w", err)
	}

	if p.history != nil {
		rec := &models.HistoryRecord{
			CameraID:      result.CameraID,
			ResultID:      result.ID,
			ImagePath:     paths.Raw,
			ProcessedPath: paths.Annotated,
			ResultPath:    paths.Result,
			Dominant:      result.Dominant,
			Scores:        result.Scores,
			Fallback:      result.Fallback,
			Timestamp:     result.CreatedAt,
		}
		if err := p.history.InsertHistory(ctx, rec); err != nil {
			log.Warn().Err(err).Int64("camera_id", result.CameraID).Msg("history_insert_failed")
		}
	}

	ev := log.Info().
		Int64("camera_id", result.CameraID).
		Str("dominant", string(result.Dominant)).
		Int("faces", len(result.Faces))
	if result.IsFallback() {
		ev = ev.Str("fallback", string(result.Fallback)).Str("fallback_reason", result.FallbackReason)
	}
	ev.Dur("duration", time.Since(start)).Msg("detection_cycle_completed")
	return result, paths, nil
}

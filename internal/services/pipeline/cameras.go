package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/repository"
)

var ErrInvalidCamera = errors.New("invalid camera")

func validateCamera(c *models.Camera) error {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCamera)
	}
	kind, err := models.ParseTransportKind(string(c.Transport))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCamera, err)
	}
	c.Transport = kind
	if kind.IsStream() && c.StreamURL == "" && c.Address == "" {
		return fmt.Errorf("%w: %s camera needs an address or stream_url", ErrInvalidCamera, kind)
	}
	if c.DeviceIndex < 0 {
		return fmt.Errorf("%w: device_index must be >= 0", ErrInvalidCamera)
	}
	if c.SamplingInterval < 0 {
		return fmt.Errorf("%w: sampling interval must be >= 0", ErrInvalidCamera)
	}
	return nil
}

func (s *Service) ListCameras(ctx context.Context) ([]models.Camera, error) {
	return s.store.ListCameras(ctx)
}

func (s *Service) GetCamera(ctx context.Context, id int64) (*models.Camera, error) {
	return s.lookup(ctx, id)
}

// CreateCamera stores a new inactive camera
func (s *Service) CreateCamera(ctx context.Context, c *models.Camera) error {
	if err := validateCamera(c); err != nil {
		return err
	}
	c.Active = false
	return s.store.CreateCamera(ctx, c)
}

// UpdateCamera saves the new settings and restarts a running camera so they take effect
func (s *Service) UpdateCamera(ctx context.Context, c *models.Camera) error {
	if err := validateCamera(c); err != nil {
		return err
	}
	if err := s.store.UpdateCamera(ctx, c); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrCameraNotFound, c.ID)
		}
		return err
	}
	if _, running := s.sessions.GetSession(c.ID); running {
		log.Info().Int64("camera_id", c.ID).Msg("camera_updated_restarting")
		if err := s.DeactivateCamera(ctx, c.ID); err != nil {
			return err
		}
		return s.ActivateCamera(ctx, c.ID)
	}
	return nil
}

// DeleteCamera deactivates the camera, drops its schedule and removes it
func (s *Service) DeleteCamera(ctx context.Context, id int64) error {
	if _, err := s.lookup(ctx, id); err != nil {
		return err
	}
	if err := s.DeactivateCamera(ctx, id); err != nil {
		return err
	}
	if err := s.ClearSchedule(ctx, id); err != nil {
		log.Warn().Err(err).Int64("camera_id", id).Msg("schedule_clear_failed")
	}
	if err := s.store.DeleteCamera(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrCameraNotFound, id)
		}
		return err
	}
	return nil
}

// Reachable checks the camera's transport without starting a session
func (s *Service) Reachable(ctx context.Context, id int64) (bool, error) {
	cam, err := s.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	src, err := s.factory.New(cam)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidCamera, err)
	}
	defer src.Close()

	ctx, cancel := context.WithTimeout(ctx, s.opts.CaptureTimeout)
	defer cancel()
	return src.Reachable(ctx), nil
}

// History returns one page of persisted detections, newest first, and the total count
func (s *Service) History(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, int, error) {
	return s.store.ListHistory(ctx, filter)
}

// ClearHistory removes history rows for a camera (0 for all) and, when
// deleteFiles is set, their artifacts. Artifact failures are logged only.
func (s *Service) ClearHistory(ctx context.Context, cameraID int64, deleteFiles bool) (int, error) {
	removed, err := s.store.ClearHistory(ctx, cameraID)
	if err != nil {
		return 0, fmt.Errorf("clear history: %w", err)
	}
	if deleteFiles && s.artifacts != nil {
		failed := 0
		for _, r := range removed {
			paths := models.ArtifactPaths{Raw: r.ImagePath, Annotated: r.ProcessedPath, Result: r.ResultPath}
			if err := s.artifacts.Delete(ctx, paths); err != nil {
				failed++
				log.Debug().Err(err).Int64("camera_id", r.CameraID).Msg("artifact_delete_failed")
			}
		}
		if failed > 0 {
			log.Warn().Int("failed", failed).Int("records", len(removed)).Msg("history_artifacts_partially_deleted")
		}
	}
	log.Info().Int64("camera_id", cameraID).Int("records", len(removed)).Bool("delete_files", deleteFiles).Msg("history_cleared")
	return len(removed), nil
}

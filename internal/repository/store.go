package repository

import (
	"context"
	"errors"
	"time"

	"emotion-worker-go/internal/models"
)

var ErrNotFound = errors.New("record not found")

const (
	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 500
)

// Store is the persistence layer for cameras, schedule entries and detection history
type Store interface {
	GetCamera(ctx context.Context, id int64) (*models.Camera, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
	CreateCamera(ctx context.Context, camera *models.Camera) error
	UpdateCamera(ctx context.Context, camera *models.Camera) error
	DeleteCamera(ctx context.Context, id int64) error
	SetCameraActive(ctx context.Context, id int64, active bool) error
	UpdateConnectionState(ctx context.Context, id int64, state models.ConnectionState, lastConnected *time.Time) error

	ListSchedules(ctx context.Context) ([]models.ScheduleEntry, error)
	GetSchedule(ctx context.Context, cameraID int64) (*models.ScheduleEntry, error)
	UpsertSchedule(ctx context.Context, entry *models.ScheduleEntry) error
	DeleteSchedule(ctx context.Context, cameraID int64) error

	InsertHistory(ctx context.Context, rec *models.HistoryRecord) error
	ListHistory(ctx context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, int, error)
	// ClearHistory removes the records of one camera, or all when cameraID is 0,
	// and returns them so their artifacts can be removed too
	ClearHistory(ctx context.Context, cameraID int64) ([]models.HistoryRecord, error)

	Ping(ctx context.Context) error
	Close() error
}

// normalizeFilter applies the listing defaults
func normalizeFilter(f models.HistoryFilter) models.HistoryFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultHistoryLimit
	}
	if f.Limit > MaxHistoryLimit {
		f.Limit = MaxHistoryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

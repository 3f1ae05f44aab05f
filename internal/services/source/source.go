// Package source abstracts one camera transport behind a capture-one-frame interface.
package source

import (
	"context"
	"errors"

	"emotion-worker-go/internal/models"
)

var (
	ErrNotOpen      = errors.New("source is not open")
	ErrOpenFailed   = errors.New("failed to open source")
	ErrOpenTimeout  = errors.New("timed out opening source")
	ErrReadFailed   = errors.New("failed to read frame")
	ErrReadTimeout  = errors.New("timed out reading frame")
	ErrEmptyFrame   = errors.New("source returned an empty frame")
	ErrReadInFlight = errors.New("previous read still in flight")
)

// Source is one camera transport. Implementations must honour ctx cancellation
// in Open and Read even when the underlying call blocks.
type Source interface {
	Open(ctx context.Context) error
	Read(ctx context.Context) (*models.Frame, error)
	Reachable(ctx context.Context) bool
	Kind() models.TransportKind
	Close() error
}

// Factory builds the source variant matching a camera's transport kind
type Factory interface {
	New(camera *models.Camera) (Source, error)
}

// FactoryFunc adapts a function to Factory
type FactoryFunc func(camera *models.Camera) (Source, error)

func (f FactoryFunc) New(camera *models.Camera) (Source, error) {
	return f(camera)
}

// CaptureOne opens a short-lived source, reads a single frame and closes it
func CaptureOne(ctx context.Context, f Factory, camera *models.Camera) (*models.Frame, error) {
	src, err := f.New(camera)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if err := src.Open(ctx); err != nil {
		return nil, err
	}
	frame, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}
	if !frame.Valid() {
		return nil, ErrEmptyFrame
	}
	return frame, nil
}

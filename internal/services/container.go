package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/helpers"
	"emotion-worker-go/internal/repository"
	"emotion-worker-go/internal/services/camera"
	"emotion-worker-go/internal/services/detection"
	"emotion-worker-go/internal/services/frameprocessing"
	"emotion-worker-go/internal/services/frameprocessing/overlay"
	"emotion-worker-go/internal/services/pipeline"
	"emotion-worker-go/internal/services/publisher"
	"emotion-worker-go/internal/services/source/opencv"
	"emotion-worker-go/internal/services/storage"
)

// ServiceContainer holds all services
type ServiceContainer struct {
	Config        *config.Config
	Store         repository.Store
	Analyzer      frameprocessing.Analyzer
	Artifacts     storage.Store
	CameraManager *camera.CameraManager
	Pipeline      *pipeline.Service
	Publisher     *publisher.Service
	StartedAt     time.Time
}

// NewServiceContainer creates a new service container
func NewServiceContainer(ctx context.Context, cfg *config.Config) (*ServiceContainer, error) {
	store, err := repository.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	enc := helpers.NewJPEGEncoder(cfg.JPEGQuality)

	analyzer, err := frameprocessing.NewAnalyzer(cfg, enc)
	if err != nil {
		store.Close()
		return nil, err
	}

	artifacts, err := storage.New(ctx, cfg, enc)
	if err != nil {
		analyzer.Close()
		store.Close()
		return nil, err
	}

	cycle := detection.NewCycle(analyzer, overlay.NewAnnotator(cfg.AnnotateTimestamp), detection.Config{
		Jitter:          cfg.DetectionJitter,
		FallbackEnabled: cfg.FallbackEnabled,
		AnalyzeTimeout:  cfg.AITimeout,
	})
	processor := detection.NewProcessor(cycle, artifacts, store)

	factory := opencv.NewFactory(cfg)
	cameraManager := camera.NewCameraManager(factory, store, camera.Options{
		FPS:         cfg.CaptureFPS,
		RetryDelay:  cfg.CaptureRetryDelay,
		StopTimeout: cfg.SessionStopTimeout,
		BackoffMax:  cfg.ReconnectBackoffMax,
		JitterPct:   cfg.ReconnectJitterPct,
	})

	pipe := pipeline.New(store, artifacts, cameraManager, factory, processor, pipeline.Options{
		DetectionEnabled: cfg.DetectionEnabled,
		SamplingInterval: cfg.SamplingInterval,
		SamplingPoll:     cfg.SamplingPoll,
		CaptureTimeout:   cfg.CaptureOpenTimeout + cfg.CaptureReadTimeout,
		JobTimeout:       cfg.CaptureOpenTimeout + cfg.CaptureReadTimeout + cfg.AITimeout,
		Decode:           helpers.DecodeJPEG,
	})

	pub := publisher.NewService(publisher.NewSinks(cfg), enc, publisher.Options{
		WorkerID:       cfg.WorkerID,
		PublishTimeout: 5 * time.Second,
		Placeholder:    helpers.PlaceholderJPEG,
	})
	pipe.Subscribe(0, pub.HandleResult)

	return &ServiceContainer{
		Config:        cfg,
		Store:         store,
		Analyzer:      analyzer,
		Artifacts:     artifacts,
		CameraManager: cameraManager,
		Pipeline:      pipe,
		Publisher:     pub,
		StartedAt:     time.Now(),
	}, nil
}

// Start restores schedules and active cameras
func (sc *ServiceContainer) Start(ctx context.Context) error {
	return sc.Pipeline.Start(ctx)
}

// Shutdown gracefully shuts down all services
func (sc *ServiceContainer) Shutdown(ctx context.Context) error {
	var errs []error

	if sc.Pipeline != nil {
		if err := sc.Pipeline.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if sc.Publisher != nil {
		if err := sc.Publisher.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if sc.Analyzer != nil {
		if err := sc.Analyzer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if sc.Store != nil {
		if err := sc.Store.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info().Msg("service_container_shutdown_complete")
	return errors.Join(errs...)
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/api"
	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/logging"
	"emotion-worker-go/internal/services"
)

// @title Emotion Worker API
// @version 1.0.0
// @description Samples camera frames, runs facial emotion analysis and persists the results.
// @BasePath /
func main() {
	cfg := config.Load()
	logging.Setup(cfg)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid_configuration")
	}

	log.Info().
		Str("worker_id", cfg.WorkerID).
		Str("version", cfg.Version).
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Bool("detection_enabled", cfg.DetectionEnabled).
		Str("ai_backend", cfg.AIBackend).
		Str("storage_backend", cfg.StorageBackend).
		Msg("emotion_worker_starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := services.NewServiceContainer(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service_container_init_failed")
	}
	if err := container.Start(ctx); err != nil {
		log.Error().Err(err).Msg("pipeline_start_failed")
	}

	server := api.NewServer(cfg, container)
	if err := server.Setup(); err != nil {
		log.Fatal().Err(err).Msg("api_setup_failed")
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("api_server_failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("api_server_forced_shutdown")
	}
	if err := container.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("service_container_shutdown_errors")
		os.Exit(1)
	}
	log.Info().Msg("emotion_worker_stopped")
}

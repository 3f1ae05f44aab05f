package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/api/handlers"
	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/services"
)

type Server struct {
	config    *config.Config
	container *services.ServiceContainer
	router    *gin.Engine
	server    *http.Server

	healthHandler   *handlers.HealthHandler
	cameraHandler   *handlers.CameraHandler
	scheduleHandler *handlers.ScheduleHandler
	historyHandler  *handlers.HistoryHandler
	streamHandler   *handlers.StreamHandler
	systemHandler   *handlers.SystemHandler
}

func NewServer(cfg *config.Config, container *services.ServiceContainer) *Server {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	checks := map[string]handlers.Pinger{
		"store":    container.Store,
		"analyzer": handlers.PingFunc(container.Analyzer.Healthy),
	}

	return &Server{
		config:          cfg,
		container:       container,
		router:          gin.New(),
		healthHandler:   handlers.NewHealthHandler(cfg, container.StartedAt, checks),
		cameraHandler:   handlers.NewCameraHandler(container.Pipeline, container.Publisher),
		scheduleHandler: handlers.NewScheduleHandler(container.Pipeline),
		historyHandler:  handlers.NewHistoryHandler(container.Pipeline, container.Artifacts),
		streamHandler:   handlers.NewStreamHandler(container.Publisher.Hub()),
		systemHandler:   handlers.NewSystemHandler(cfg.WorkerID, container.StartedAt, container.CameraManager, container.Publisher),
	}
}

func (s *Server) Setup() error {
	s.setupMiddleware()
	s.setupRoutes()
	s.setupSwagger()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return nil
}

// Start blocks until the server stops. A graceful shutdown is not an error.
func (s *Server) Start() error {
	log.Info().Int("port", s.config.Port).Str("worker_id", s.config.WorkerID).Msg("api_server_starting")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("api_server_stopping")
	return s.server.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

package api

func (s *Server) setupRoutes() {
	s.router.GET("/", s.healthHandler.WorkerInfo)
	s.router.GET("/health", s.healthHandler.HealthCheck)

	cameras := s.router.Group("/cameras")
	{
		cameras.GET("", s.cameraHandler.ListCameras)
		cameras.POST("", s.cameraHandler.CreateCamera)
		cameras.GET("/:id", s.cameraHandler.GetCamera)
		cameras.PUT("/:id", s.cameraHandler.UpdateCamera)
		cameras.DELETE("/:id", s.cameraHandler.DeleteCamera)

		cameras.POST("/:id/activate", s.cameraHandler.Activate)
		cameras.POST("/:id/deactivate", s.cameraHandler.Deactivate)
		cameras.GET("/:id/status", s.cameraHandler.GetCameraStatus)
		cameras.GET("/:id/reachable", s.cameraHandler.Reachable)

		cameras.POST("/:id/run-once", s.cameraHandler.RunOnce)
		cameras.POST("/:id/process", s.cameraHandler.ProcessUpload)
		cameras.GET("/:id/frame", s.cameraHandler.GetLatestFrame)
		cameras.GET("/:id/stream", s.cameraHandler.StreamMJPEG)

		cameras.GET("/:id/schedule", s.scheduleHandler.GetSchedule)
		cameras.PUT("/:id/schedule", s.scheduleHandler.SetSchedule)
		cameras.POST("/:id/schedule", s.scheduleHandler.SetSchedule)
		cameras.DELETE("/:id/schedule", s.scheduleHandler.ClearSchedule)
	}

	s.router.GET("/schedules", s.scheduleHandler.ListSchedules)

	s.router.GET("/history", s.historyHandler.ListHistory)
	s.router.DELETE("/history", s.historyHandler.ClearHistory)
	s.router.GET("/artifacts/*key", s.historyHandler.GetArtifact)

	s.router.GET("/ws/results", s.streamHandler.StreamResults)

	system := s.router.Group("/system")
	{
		system.GET("/stats", s.systemHandler.GetStats)
		system.GET("/sessions", s.systemHandler.ListSessions)
	}
}

package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/logdyhq/logdy-core/logdy"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/config"
)

// KeyWorkerID tags events with the worker that emitted them
const KeyWorkerID = "worker_id"

// logdySink is the part of the Logdy instance the writer feeds
type logdySink interface {
	Log(fields logdy.Fields) error
	LogString(message string) error
}

// logdyWriter forwards zerolog JSON lines to the viewer as structured rows,
// tagged with the worker that produced them.
type logdyWriter struct {
	sink     logdySink
	workerID string
}

func (w *logdyWriter) Write(p []byte) (int, error) {
	var fields logdy.Fields
	if err := json.Unmarshal(p, &fields); err != nil {
		// Not a JSON event; show it as-is
		if err := w.sink.LogString(string(p)); err != nil {
			return 0, err
		}
		return len(p), nil
	}
	if _, ok := fields[KeyWorkerID]; !ok && w.workerID != "" {
		fields[KeyWorkerID] = w.workerID
	}
	if err := w.sink.Log(fields); err != nil {
		return 0, err
	}
	return len(p), nil
}

// StartLogdy serves the embedded Logdy UI and returns the writer to tee logs into, plus the UI URL
func StartLogdy(cfg *config.Config) (io.Writer, string, error) {
	if cfg.LogdyPort <= 0 || cfg.LogdyPort > 65535 {
		return nil, "", fmt.Errorf("invalid logdy port %d", cfg.LogdyPort)
	}
	port := strconv.Itoa(cfg.LogdyPort)
	ld := logdy.InitializeLogdy(logdy.Config{
		ServerIp:   cfg.LogdyHost,
		ServerPort: port,
		LogLevel:   logdy.LOG_LEVEL_SILENT,
	}, nil)

	url := fmt.Sprintf("http://%s:%s", cfg.LogdyHost, port)
	log.Info().Str("url", url).Str(KeyWorkerID, cfg.WorkerID).Msg("logdy_ui_available")
	return &logdyWriter{sink: ld, workerID: cfg.WorkerID}, url, nil
}

package handlers

import (
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"emotion-worker-go/internal/services/camera"
	"emotion-worker-go/internal/services/publisher"
)

// SessionLister exposes the running camera sessions
type SessionLister interface {
	ListSessions() []*camera.Session
}

// PublisherStats exposes result delivery counters
type PublisherStats interface {
	Stats() publisher.Stats
}

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	workerID  string
	startedAt time.Time
	sessions  SessionLister
	publisher PublisherStats
	proc      *process.Process
}

func NewSystemHandler(workerID string, startedAt time.Time, sessions SessionLister, pub PublisherStats) *SystemHandler {
	h := &SystemHandler{workerID: workerID, startedAt: startedAt, sessions: sessions, publisher: pub}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		h.proc = p
	} else {
		log.Warn().Err(err).Msg("process_stats_unavailable")
	}
	return h
}

type SessionSummary struct {
	CameraID       int64      `json:"camera_id"`
	State          string     `json:"state"`
	Connection     string     `json:"connection"`
	FramesCaptured int64      `json:"frames_captured"`
	ReadErrors     int64      `json:"read_errors"`
	Reconnects     int64      `json:"reconnects"`
	LastFrameTime  *time.Time `json:"last_frame_time,omitempty"`
}

// @Summary Get system stats
// @Description Process, runtime and pipeline statistics
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /system/stats [get]
func (h *SystemHandler) GetStats(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := gin.H{
		"worker_id":      h.workerID,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"heap_alloc_mb":  m.Alloc / 1024 / 1024,
		"cpu_cores":      runtime.NumCPU(),
		"goroutines":     runtime.NumGoroutine(),
		"go_version":     runtime.Version(),
		"sessions":       len(h.sessions.ListSessions()),
	}
	if h.proc != nil {
		if cpu, err := h.proc.CPUPercent(); err == nil {
			stats["process_cpu_percent"] = cpu
		}
		if mem, err := h.proc.MemoryInfo(); err == nil {
			stats["process_rss_mb"] = mem.RSS / 1024 / 1024
		}
		if memP, err := h.proc.MemoryPercent(); err == nil {
			stats["process_mem_percent"] = memP
		}
	}
	if h.publisher != nil {
		stats["publisher"] = h.publisher.Stats()
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"stats":     stats,
		"timestamp": time.Now().Unix(),
	})
}

// @Summary List capture sessions
// @Description Counters for every running camera session
// @Tags system
// @Produce json
// @Success 200 {array} SessionSummary
// @Router /system/sessions [get]
func (h *SystemHandler) ListSessions(c *gin.Context) {
	sessions := h.sessions.ListSessions()
	out := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		st := s.Stats()
		out = append(out, SessionSummary{
			CameraID:       s.CameraID(),
			State:          s.State().String(),
			Connection:     string(s.ConnectionState()),
			FramesCaptured: st.FramesCaptured,
			ReadErrors:     st.ReadErrors,
			Reconnects:     st.Reconnects,
			LastFrameTime:  st.LastFrameTime,
		})
	}
	c.JSON(http.StatusOK, out)
}

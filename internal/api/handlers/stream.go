package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"emotion-worker-go/internal/logging"
	"emotion-worker-go/internal/services/publisher"
)

const (
	wsWriteWait  = 5 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// ResultStream registers live result listeners
type ResultStream interface {
	Listen(cameraID int64) *publisher.Listener
	Unlisten(l *publisher.Listener)
}

type StreamHandler struct {
	results  ResultStream
	upgrader websocket.Upgrader
}

func NewStreamHandler(results ResultStream) *StreamHandler {
	return &StreamHandler{
		results: results,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// StreamResults godoc
// @Summary Live detection results
// @Description Upgrades to a websocket and pushes one JSON event per completed detection
// @Tags stream
// @Param camera_id query int false "Camera ID, all cameras when omitted"
// @Success 101
// @Router /ws/results [get]
func (h *StreamHandler) StreamResults(c *gin.Context) {
	camID, ok := optionalInt64(c, "camera_id")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c).Err(err).Msg("websocket_upgrade_failed")
		return
	}
	defer conn.Close()

	listener := h.results.Listen(camID)
	defer h.results.Unlisten(listener)
	logging.Info(c).Int64("camera_id", camID).Str("remote", c.Request.RemoteAddr).Msg("result_stream_opened")

	// The read side only handles control frames and notices the client leaving.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsPongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-gone:
			logging.Debug(c).Int64("camera_id", camID).Msg("result_stream_closed")
			return
		case event, open := <-listener.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !open {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				logging.Debug(c).Err(err).Msg("result_stream_write_failed")
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

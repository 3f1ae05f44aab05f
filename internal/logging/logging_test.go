package logging

import (
	"bytes"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/logdyhq/logdy-core/logdy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emotion-worker-go/internal/config"
)

func TestWithCameraAddsField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := WithCamera(base, 42)
	logger.Info().Msg("session_started")

	assert.Contains(t, buf.String(), `"camera_id":42`)
	assert.Contains(t, buf.String(), `"message":"session_started"`)
}

func TestGinContextFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Params = gin.Params{{Key: "id", Value: "7"}}
	c.Set(KeyRequestID, "req-1")
	c.Set(KeyStartTime, time.Now())

	Warn(c).Msg("request_failed")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"camera_id":7`)
	assert.Contains(t, out, `"elapsed"`)
}

type recordingSink struct {
	rows  []logdy.Fields
	lines []string
}

func (s *recordingSink) Log(f logdy.Fields) error {
	s.rows = append(s.rows, f)
	return nil
}

func (s *recordingSink) LogString(m string) error {
	s.lines = append(s.lines, m)
	return nil
}

func TestLogdyWriterStampsWorker(t *testing.T) {
	sink := &recordingSink{}
	w := &logdyWriter{sink: sink, workerID: "worker-a"}

	logger := zerolog.New(w)
	logger.Info().Int64("camera_id", 3).Msg("camera_activated")
	logger.Info().Str(KeyWorkerID, "worker-b").Msg("relayed")
	n, err := w.Write([]byte("plain text\n"))
	require.NoError(t, err)
	assert.Equal(t, len("plain text\n"), n)

	require.Len(t, sink.rows, 2)
	assert.Equal(t, "worker-a", sink.rows[0][KeyWorkerID])
	assert.Equal(t, "camera_activated", sink.rows[0]["message"])
	assert.Equal(t, float64(3), sink.rows[0]["camera_id"])
	assert.Equal(t, "worker-b", sink.rows[1][KeyWorkerID])
	assert.Equal(t, []string{"plain text\n"}, sink.lines)
}

func TestStartLogdyRejectsBadPort(t *testing.T) {
	_, _, err := StartLogdy(&config.Config{LogdyHost: "localhost", LogdyPort: 70000})
	assert.Error(t, err)
}

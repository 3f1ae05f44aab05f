package logging

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Keys set on the gin context by the request middleware
const (
	KeyRequestID = "request_id"
	KeyStartTime = "start_time"
)

// withGinContext tags a request-scoped event with its request id, elapsed
// time and, on /cameras/:id routes, the camera id.
func withGinContext(c *gin.Context, e *zerolog.Event) *zerolog.Event {
	if c == nil {
		return e
	}
	if id := c.GetString(KeyRequestID); id != "" {
		e.Str("request_id", id)
	}
	if raw := c.Param("id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			e.Int64("camera_id", id)
		}
	}
	if v, ok := c.Get(KeyStartTime); ok {
		if t, ok2 := v.(time.Time); ok2 {
			e.Dur("elapsed", time.Since(t))
		}
	}
	return e
}

func Info(c *gin.Context) *zerolog.Event  { return withGinContext(c, log.Info()) }
func Debug(c *gin.Context) *zerolog.Event { return withGinContext(c, log.Debug()) }
func Warn(c *gin.Context) *zerolog.Event  { return withGinContext(c, log.Warn()) }
func Error(c *gin.Context) *zerolog.Event { return withGinContext(c, log.Error()) }

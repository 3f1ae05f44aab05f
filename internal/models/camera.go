package models

import (
	"fmt"
	"strings"
	"time"
)

// TransportKind selects the frame source implementation for a camera
type TransportKind string

const (
	TransportLocalDevice TransportKind = "local-device"
	TransportHTTPStream  TransportKind = "http-stream"
	TransportRTSP        TransportKind = "rtsp-like"
)

// ParseTransportKind accepts the canonical names and the legacy camera_type values
// (webcam, droidcam, ipcam) still stored by older management tooling.
func ParseTransportKind(s string) (TransportKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "local-device", "webcam", "local", "":
		return TransportLocalDevice, nil
	case "http-stream", "droidcam", "ipcam", "mjpeg", "http":
		return TransportHTTPStream, nil
	case "rtsp-like", "rtsp":
		return TransportRTSP, nil
	default:
		return "", fmt.Errorf("unknown transport kind %q", s)
	}
}

// IsStream reports whether the transport is a network stream that must be reopened after a failed read
func (k TransportKind) IsStream() bool {
	return k == TransportHTTPStream || k == TransportRTSP
}

func (k TransportKind) String() string {
	return string(k)
}

// ConnectionState is the camera connection health as last observed by its session
type ConnectionState string

const (
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionError        ConnectionState = "error"
)

func (s ConnectionState) String() string {
	return string(s)
}

// Camera represents a configured camera as stored by the management layer
type Camera struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Location    string        `json:"location,omitempty"`
	Transport   TransportKind `json:"transport"`
	Address     string        `json:"address,omitempty"`
	Port        int           `json:"port,omitempty"`
	StreamURL   string        `json:"stream_url,omitempty"`
	DeviceIndex int           `json:"device_index"`
	Active      bool          `json:"active"`

	// Sampling interval override; zero uses the worker default
	SamplingInterval time.Duration `json:"sampling_interval,omitempty"`

	ConnectionState ConnectionState `json:"connection_state"`
	LastConnected   *time.Time      `json:"last_connected,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ResolveStreamURL returns the URL a network transport should open.
// An explicit stream URL always wins.
func (c *Camera) ResolveStreamURL() string {
	if c.StreamURL != "" {
		return c.StreamURL
	}
	switch c.Transport {
	case TransportHTTPStream:
		if c.Port > 0 {
			return fmt.Sprintf("http://%s:%d/video", c.Address, c.Port)
		}
		return fmt.Sprintf("http://%s/video", c.Address)
	case TransportRTSP:
		if c.Port > 0 {
			return fmt.Sprintf("rtsp://%s:%d/", c.Address, c.Port)
		}
		return fmt.Sprintf("rtsp://%s/", c.Address)
	default:
		return ""
	}
}

// Frame is a single decoded BGR24 image
type Frame struct {
	CameraID  int64
	Data      []byte
	Timestamp time.Time
	FrameID   int64
	Width     int
	Height    int
}

// Valid reports whether the frame carries a complete BGR24 image
func (f *Frame) Valid() bool {
	if f == nil || f.Width <= 0 || f.Height <= 0 {
		return false
	}
	return len(f.Data) == f.Width*f.Height*3
}

// Clone returns a deep copy that the caller owns exclusively
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	cp := *f
	cp.Data = make([]byte, len(f.Data))
	copy(cp.Data, f.Data)
	return &cp
}

// CameraStatusResponse for API
type CameraStatusResponse struct {
	CameraID        int64           `json:"camera_id"`
	SessionState    string          `json:"session_state"`
	ConnectionState ConnectionState `json:"connection_state"`
	LastConnected   *time.Time      `json:"last_connected,omitempty"`
	LastFrameTime   *time.Time      `json:"last_frame_time,omitempty"`
	FramesCaptured  int64           `json:"frames_captured"`
	ReadErrors      int64           `json:"read_errors"`
	Reconnects      int64           `json:"reconnects"`
	Sampling        bool            `json:"sampling"`
	CyclesRun       int64           `json:"cycles_run"`
	TicksSkipped    int64           `json:"ticks_skipped"`
}

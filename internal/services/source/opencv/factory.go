// Package opencv implements frame sources over gocv VideoCapture.
package opencv

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/services/source"
)

var ffmpegOnce sync.Once

// Factory selects a capture variant from the camera's transport kind
type Factory struct {
	cfg    *config.Config
	prober *source.Prober
}

func NewFactory(cfg *config.Config) *Factory {
	ffmpegOnce.Do(configureFFmpegOptions)
	return &Factory{
		cfg:    cfg,
		prober: source.NewProber(cfg.CaptureReadTimeout),
	}
}

func (f *Factory) New(camera *models.Camera) (source.Source, error) {
	if camera == nil {
		return nil, fmt.Errorf("camera is nil")
	}
	switch camera.Transport {
	case models.TransportLocalDevice:
		return f.newLocalDevice(camera), nil
	case models.TransportHTTPStream, models.TransportRTSP:
		url := camera.ResolveStreamURL()
		if url == "" || strings.HasPrefix(url, "http:///") || strings.HasPrefix(url, "rtsp:///") {
			return nil, fmt.Errorf("camera %d has no address or stream url", camera.ID)
		}
		return f.newStream(camera, url), nil
	default:
		return nil, fmt.Errorf("camera %d: unsupported transport %q", camera.ID, camera.Transport)
	}
}

func (f *Factory) newLocalDevice(camera *models.Camera) *captureSource {
	device := camera.DeviceIndex
	if device < 0 {
		device = f.cfg.DefaultDeviceIndex
	}
	return &captureSource{
		cameraID: camera.ID,
		kind:     models.TransportLocalDevice,
		target:   fmt.Sprintf("device:%d", device),
		open: func() (*gocv.VideoCapture, error) {
			return gocv.OpenVideoCapture(device)
		},
		openTimeout: f.cfg.CaptureOpenTimeout,
		readTimeout: f.cfg.CaptureReadTimeout,
	}
}

func (f *Factory) newStream(camera *models.Camera, url string) *captureSource {
	return &captureSource{
		cameraID: camera.ID,
		kind:     camera.Transport,
		target:   url,
		open: func() (*gocv.VideoCapture, error) {
			return gocv.OpenVideoCaptureWithAPI(url, gocv.VideoCaptureFFmpeg)
		},
		openTimeout: f.cfg.CaptureOpenTimeout,
		readTimeout: f.cfg.CaptureReadTimeout,
		prober:      f.prober,
	}
}

// configureFFmpegOptions sets the low-latency FFmpeg capture options OpenCV reads from the environment
func configureFFmpegOptions() {
	if os.Getenv("OPENCV_FFMPEG_CAPTURE_OPTIONS") != "" {
		return
	}
	ffmpegOptions := map[string]string{
		"rtsp_transport":  "tcp",
		"max_delay":       "500000",
		"stimeout":        "5000000",
		"rw_timeout":      "5000000",
		"fflags":          "nobuffer",
		"flags":           "low_delay",
		"analyzeduration": "500000",
		"probesize":       "2000000",
	}
	keys := make([]string, 0, len(ffmpegOptions))
	for k := range ffmpegOptions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+";"+ffmpegOptions[k])
	}
	opts := strings.Join(parts, "|")
	os.Setenv("OPENCV_FFMPEG_CAPTURE_OPTIONS", opts)
	log.Debug().Str("ffmpeg_options", opts).Msg("ffmpeg_capture_options_configured")
}

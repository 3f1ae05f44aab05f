package helpers

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"emotion-worker-go/internal/models"
)

// JPEG quality settings
const (
	HighQuality   = 95
	MediumQuality = 75
)

// FrameToMat wraps a BGR24 frame in a new Mat. The caller must Close it.
func FrameToMat(frame *models.Frame) (gocv.Mat, error) {
	if !frame.Valid() {
		return gocv.NewMat(), fmt.Errorf("invalid frame: %dx%d with %d bytes", frame.Width, frame.Height, len(frame.Data))
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	return mat, nil
}

// MatToFrame copies a BGR Mat into a frame
func MatToFrame(mat gocv.Mat, cameraID, frameID int64, ts time.Time) *models.Frame {
	return &models.Frame{
		CameraID:  cameraID,
		Data:      mat.ToBytes(),
		Timestamp: ts,
		FrameID:   frameID,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
	}
}

// ConvertBGRToJPEG converts a BGR24 frame to JPEG bytes
func ConvertBGRToJPEG(frame *models.Frame, quality int) ([]byte, error) {
	mat, err := FrameToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode BGR as JPEG: %w", err)
	}
	defer buf.Close()

	b := buf.GetBytes()
	jpegCopy := make([]byte, len(b))
	copy(jpegCopy, b)
	return jpegCopy, nil
}

// DecodeJPEG decodes an encoded image (JPEG, PNG) into a BGR24 frame
func DecodeJPEG(cameraID int64, data []byte) (*models.Frame, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	defer mat.Close()
	if mat.Empty() {
		return nil, fmt.Errorf("decoded image is empty")
	}
	return MatToFrame(mat, cameraID, 0, time.Now()), nil
}

// JPEGEncoder encodes frames with a fixed quality
type JPEGEncoder struct {
	Quality int
}

func NewJPEGEncoder(quality int) *JPEGEncoder {
	if quality <= 0 || quality > 100 {
		quality = HighQuality
	}
	return &JPEGEncoder{Quality: quality}
}

func (e *JPEGEncoder) Encode(frame *models.Frame) ([]byte, error) {
	return ConvertBGRToJPEG(frame, e.Quality)
}

// PlaceholderJPEG renders the gray card shown before a camera produces its first annotated frame
func PlaceholderJPEG(cameraID int64) []byte {
	placeholder := gocv.NewMatWithSize(360, 640, gocv.MatTypeCV8UC3)
	defer placeholder.Close()

	placeholder.SetTo(gocv.Scalar{Val1: 64, Val2: 64, Val3: 64, Val4: 0})

	textColor := color.RGBA{R: 255, G: 255, B: 255, A: 255}
	gocv.PutText(&placeholder, fmt.Sprintf("Camera: %d", cameraID),
		image.Pt(20, 180), gocv.FontHersheySimplex, 1.0, textColor, 2)
	gocv.PutText(&placeholder, "Waiting for analysis...",
		image.Pt(20, 220), gocv.FontHersheySimplex, 0.8, textColor, 2)

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, placeholder, []int{gocv.IMWriteJpegQuality, MediumQuality})
	if err != nil {
		return nil
	}
	defer buf.Close()

	b := buf.GetBytes()
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

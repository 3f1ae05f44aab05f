package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"time"

	"gocv.io/x/gocv"

	"emotion-worker-go/internal/helpers"
	"emotion-worker-go/internal/models"
)

// Emotion colours. gocv maps RGBA onto its BGR scalar, so these read as
// angry red, disgust purple, fear orange-red, happy green, sad cyan,
// surprise gold and neutral gray on screen.
var emotionColors = map[models.Emotion]color.RGBA{
	models.EmotionAngry:    {R: 255, G: 0, B: 0, A: 255},
	models.EmotionDisgust:  {R: 128, G: 0, B: 128, A: 255},
	models.EmotionFear:     {R: 255, G: 69, B: 0, A: 255},
	models.EmotionHappy:    {R: 0, G: 255, B: 0, A: 255},
	models.EmotionSad:      {R: 0, G: 255, B: 255, A: 255},
	models.EmotionSurprise: {R: 255, G: 215, B: 0, A: 255},
	models.EmotionNeutral:  {R: 128, G: 128, B: 128, A: 255},
}

// ColorFor returns the overlay colour of an emotion
func ColorFor(e models.Emotion) color.RGBA {
	if c, ok := emotionColors[e]; ok {
		return c
	}
	return white
}

const (
	topBars        = 4
	barWidth       = 100
	barSpacing     = 16
	errorTextLimit = 30
)

// Annotator draws detection results with gocv
type Annotator struct {
	ShowTimestamp bool
}

func NewAnnotator(showTimestamp bool) *Annotator {
	return &Annotator{ShowTimestamp: showTimestamp}
}

// Annotate draws onto a copy of frame; the input is never modified
func (a *Annotator) Annotate(frame *models.Frame, result *models.DetectionResult) (*models.Frame, error) {
	out := frame.Clone()
	mat, err := helpers.FrameToMat(out)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	switch {
	case result.Fallback == models.FallbackInternalError:
		msg := result.FallbackReason
		if len(msg) > errorTextLimit {
			msg = msg[:errorTextLimit]
		}
		drawMarker(&mat, "error: "+msg)
	case len(result.Faces) == 0:
		drawMarker(&mat, "no face detected")
	default:
		for _, f := range result.Faces {
			drawFace(&mat, f)
		}
	}

	if a.ShowTimestamp {
		ts := result.CreatedAt
		if ts.IsZero() {
			ts = time.Now()
		}
		DrawText(&mat, ts.Format("2006-01-02 15:04:05"), 10, mat.Rows()-10, white, 0.5, 1)
	}

	out.Data = mat.ToBytes()
	return out, nil
}

// drawMarker draws the centred red box used when there is nothing to label
func drawMarker(mat *gocv.Mat, text string) {
	w, h := mat.Cols(), mat.Rows()
	r := image.Rect(w/4, h/4, w/4+w/2, h/4+h/2)
	gocv.Rectangle(mat, clampRect(r, w, h), red, 2)
	DrawText(mat, text, r.Min.X, max(r.Min.Y-8, 12), red, 0.5, 1)
}

func drawFace(mat *gocv.Mat, f models.Face) {
	dominant := f.Dominant
	if dominant == "" {
		dominant = f.Scores.Dominant()
	}
	c := ColorFor(dominant)
	box := image.Rect(f.Box.X, f.Box.Y, f.Box.X+f.Box.W, f.Box.Y+f.Box.H)
	DrawBox(mat, box, c, 2)

	label := fmt.Sprintf("%s (%d%%)", dominant, int(f.Scores[dominant]*100))
	DrawText(mat, label, box.Min.X, max(box.Min.Y-8, 12), c, 0.6, 2)

	x := box.Max.X + 8
	if x+barWidth+60 > mat.Cols() {
		x = max(box.Min.X, 0)
	}
	y := box.Min.Y
	if x == box.Min.X {
		y = box.Max.Y + 8
	}
	for i, e := range topEmotions(f.Scores, topBars) {
		DrawBar(mat, fmt.Sprintf("%s %d%%", e, int(f.Scores[e]*100)), f.Scores[e], x, y+i*barSpacing, barWidth, ColorFor(e))
	}
}

// topEmotions returns the n highest scoring categories, ties in enumeration order
func topEmotions(s models.Scores, n int) []models.Emotion {
	order := make([]models.Emotion, len(models.Emotions))
	copy(order, models.Emotions)
	sort.SliceStable(order, func(i, j int) bool { return s[order[i]] > s[order[j]] })
	if n > len(order) {
		n = len(order)
	}
	return order[:n]
}

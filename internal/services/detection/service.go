package detection

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"emotion-worker-go/internal/models"
)

// ErrNoScores is reported when the analyzer found faces but produced no usable distribution
var ErrNoScores = errors.New("analyzer returned no usable scores")

// Analyzer performs face detection and emotion scoring. Implementations always relax the
// analyzer's own face gate so an uncertain face still yields scores.
type Analyzer interface {
	Analyze(ctx context.Context, frame *models.Frame) ([]models.Face, error)
}

// Annotator draws the result onto a copy of the frame. With no faces it draws the
// no-face marker, or the error marker for an internal_error result.
type Annotator interface {
	Annotate(frame *models.Frame, result *models.DetectionResult) (*models.Frame, error)
}

type Config struct {
	// Symmetric multiplicative jitter applied per category, e.g. 0.05 for ±5%
	Jitter float64
	// FallbackEnabled substitutes a plausible random distribution when analysis fails.
	// When disabled the flat default distribution is used instead; the flag is set either way.
	FallbackEnabled bool
	AnalyzeTimeout  time.Duration
}

type Option func(*Cycle)

// WithRand fixes the random source, for reproducible jitter and fallbacks
func WithRand(r *rand.Rand) Option {
	return func(c *Cycle) { c.rng = r }
}

// WithClock overrides the result timestamp source
func WithClock(now func() time.Time) Option {
	return func(c *Cycle) { c.now = now }
}

// Cycle turns one frame into one detection result. Run never fails and never panics.
type Cycle struct {
	analyzer  Analyzer
	annotator Annotator
	cfg       Config
	now       func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewCycle(analyzer Analyzer, annotator Annotator, cfg Config, opts ...Option) *Cycle {
	c := &Cycle{
		analyzer:  analyzer,
		annotator: annotator,
		cfg:       cfg,
		now:       time.Now,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run analyzes frame. Analyzer failures and empty output degrade to a flagged fallback result;
// anything worse is converted into the deterministic internal_error result.
func (c *Cycle) Run(ctx context.Context, frame *models.Frame) (result *models.DetectionResult) {
	var cameraID int64
	if frame != nil {
		cameraID = frame.CameraID
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Int64("camera_id", cameraID).
				Interface("panic", r).
				Msg("detection_cycle_panic_recovered")
			result = c.internalError(frame, cameraID, fmt.Sprintf("%v", r))
		}
	}()

	if !frame.Valid() {
		return c.internalError(frame, cameraID, "invalid or empty frame")
	}

	result = &models.DetectionResult{
		ID:        uuid.NewString(),
		CameraID:  cameraID,
		CreatedAt: c.now(),
	}

	faces, err := c.analyze(ctx, frame)
	switch {
	case err != nil:
		log.Warn().Err(err).Int64("camera_id", cameraID).Msg("analyzer_failed_using_fallback")
		result.Fallback = models.FallbackAnalyzerError
		result.FallbackReason = err.Error()
		result.Scores = c.normalize(c.fallbackScores(analyzerFallbackRanges))

	case len(faces) == 0:
		log.Debug().Int64("camera_id", cameraID).Msg("no_face_detected")
		result.Fallback = models.FallbackNoFace
		result.FallbackReason = "no face detected"
		result.Scores = c.normalize(c.fallbackScores(noFaceFallbackRanges))

	default:
		result.Faces = make([]models.Face, 0, len(faces))
		for _, f := range faces {
			f.Scores = divideBySum(f.Scores)
			f.Dominant = f.Scores.Dominant()
			result.Faces = append(result.Faces, f)
		}
		agg := aggregateFaces(faces)
		if agg.Sum() <= 0 {
			log.Warn().Int64("camera_id", cameraID).Int("faces", len(faces)).Msg("analyzer_returned_zero_scores")
			result.Fallback = models.FallbackNoScores
			result.FallbackReason = ErrNoScores.Error()
		}
		result.Scores = c.normalize(agg)
	}

	result.Dominant = result.Scores.Dominant()
	result.Percent = result.Scores.Percent()
	result.Annotated = c.annotate(frame, result)
	return result
}

func (c *Cycle) analyze(ctx context.Context, frame *models.Frame) ([]models.Face, error) {
	if c.analyzer == nil {
		return nil, errors.New("no analyzer configured")
	}
	if c.cfg.AnalyzeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.AnalyzeTimeout)
		defer cancel()
	}
	return c.analyzer.Analyze(ctx, frame)
}

// normalize divides by the sum, applies the configured jitter and re-normalizes
func (c *Cycle) normalize(raw models.Scores) models.Scores {
	scores := divideBySum(raw)
	if c.cfg.Jitter <= 0 {
		return scores
	}

	c.rngMu.Lock()
	for _, e := range models.Emotions {
		factor := 1 + (c.rng.Float64()*2*c.cfg.Jitter - c.cfg.Jitter)
		scores[e] *= factor
	}
	c.rngMu.Unlock()

	return divideBySum(scores)
}

func (c *Cycle) fallbackScores(ranges map[models.Emotion]scoreRange) models.Scores {
	if !c.cfg.FallbackEnabled {
		return defaultScores()
	}
	c.rngMu.Lock()
	defer c.rngMu.Unlock()

	out := make(models.Scores, len(models.Emotions))
	for _, e := range models.Emotions {
		r := ranges[e]
		out[e] = r.lo + c.rng.Float64()*(r.hi-r.lo)
	}
	return out
}

// internalError builds the deterministic result used when the cycle cannot run
func (c *Cycle) internalError(frame *models.Frame, cameraID int64, msg string) *models.DetectionResult {
	scores := internalErrorScores()
	result := &models.DetectionResult{
		ID:             uuid.NewString(),
		CameraID:       cameraID,
		Dominant:       models.EmotionNeutral,
		Scores:         scores,
		Percent:        scores.Percent(),
		Fallback:       models.FallbackInternalError,
		FallbackReason: msg,
		CreatedAt:      c.now(),
	}

	canvas := frame
	if !canvas.Valid() {
		canvas = blankFrame(cameraID, c.now())
	}
	result.Annotated = c.annotate(canvas, result)
	return result
}

// annotate never fails: on error the unannotated copy is returned
func (c *Cycle) annotate(frame *models.Frame, result *models.DetectionResult) (out *models.Frame) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Int64("camera_id", result.CameraID).Interface("panic", r).Msg("annotation_panic_recovered")
			out = frame.Clone()
		}
	}()
	if c.annotator == nil {
		return frame.Clone()
	}
	annotated, err := c.annotator.Annotate(frame, result)
	if err != nil || !annotated.Valid() {
		log.Warn().Err(err).Int64("camera_id", result.CameraID).Msg("annotation_failed")
		return frame.Clone()
	}
	return annotated
}

const (
	blankWidth  = 320
	blankHeight = 240
)

// blankFrame is a mid-gray canvas used to carry the error marker when no usable frame exists
func blankFrame(cameraID int64, ts time.Time) *models.Frame {
	data := make([]byte, blankWidth*blankHeight*3)
	for i := range data {
		data[i] = 64
	}
	return &models.Frame{
		CameraID:  cameraID,
		Data:      data,
		Timestamp: ts,
		Width:     blankWidth,
		Height:    blankHeight,
	}
}

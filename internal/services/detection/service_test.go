package detection

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emotion-worker-go/internal/models"
)

const epsilon = 1e-9

type analyzerFunc func(ctx context.Context, frame *models.Frame) ([]models.Face, error)

func (f analyzerFunc) Analyze(ctx context.Context, frame *models.Frame) ([]models.Face, error) {
	return f(ctx, frame)
}

type recordingAnnotator struct {
	mu      sync.Mutex
	results []*models.DetectionResult
	panics  bool
}

func (a *recordingAnnotator) Annotate(frame *models.Frame, result *models.DetectionResult) (*models.Frame, error) {
	if a.panics {
		panic("font cache corrupted")
	}
	a.mu.Lock()
	a.results = append(a.results, result)
	a.mu.Unlock()
	out := frame.Clone()
	out.Data[0] = 255
	return out, nil
}

func testFrame() *models.Frame {
	return &models.Frame{CameraID: 11, Width: 8, Height: 6, Data: make([]byte, 8*6*3), Timestamp: time.Now()}
}

func seeded() Option {
	return WithRand(rand.New(rand.NewPCG(1, 2)))
}

func assertNormalized(t *testing.T, r *models.DetectionResult) {
	t.Helper()
	require.NotNil(t, r)
	assert.InDelta(t, 1.0, r.Scores.Sum(), epsilon)
	require.Contains(t, r.Scores, r.Dominant)
	for _, e := range models.Emotions {
		v, ok := r.Scores[e]
		require.True(t, ok, "missing category %s", e)
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, r.Scores[r.Dominant])
	}
}

func TestRunScoresAlwaysNormalized(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for i := 0; i < 200; i++ {
		faces := make([]models.Face, rng.IntN(4))
		for j := range faces {
			s := models.Scores{}
			for _, e := range models.Emotions {
				switch rng.IntN(6) {
				case 0:
					s[e] = 0
				case 1:
					s[e] = math.NaN()
				default:
					s[e] = rng.Float64() * 100
				}
			}
			faces[j] = models.Face{Box: models.Box{X: 1, Y: 1, W: 2, H: 2}, Scores: s}
		}
		var analyzeErr error
		if rng.IntN(5) == 0 {
			analyzeErr = errors.New("model unavailable")
		}
		c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
			return faces, analyzeErr
		}), &recordingAnnotator{}, Config{Jitter: 0.05, FallbackEnabled: true}, seeded())

		assertNormalized(t, c.Run(context.Background(), testFrame()))
	}
}

func TestRunAnalyzerErrorUsesFlaggedFallback(t *testing.T) {
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		return nil, errors.New("connection refused")
	}), &recordingAnnotator{}, Config{Jitter: 0.05, FallbackEnabled: true}, seeded())

	r := c.Run(context.Background(), testFrame())

	assertNormalized(t, r)
	assert.True(t, r.IsFallback())
	assert.Equal(t, models.FallbackAnalyzerError, r.Fallback)
	assert.Contains(t, r.FallbackReason, "connection refused")
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, int64(11), r.CameraID)
	require.NotNil(t, r.Annotated)
	assert.Equal(t, byte(255), r.Annotated.Data[0])
}

func TestRunFallbackDisabledUsesDefaultDistribution(t *testing.T) {
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		return nil, errors.New("timeout")
	}), nil, Config{Jitter: 0, FallbackEnabled: false})

	r := c.Run(context.Background(), testFrame())

	assert.Equal(t, models.FallbackAnalyzerError, r.Fallback)
	assert.InDelta(t, 0.4, r.Scores[models.EmotionNeutral], epsilon)
	assert.InDelta(t, 0.1, r.Scores[models.EmotionHappy], epsilon)
	assert.Equal(t, models.EmotionNeutral, r.Dominant)
}

func TestRunNoFacesDrawsMarker(t *testing.T) {
	ann := &recordingAnnotator{}
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		return nil, nil
	}), ann, Config{Jitter: 0.05, FallbackEnabled: true}, seeded())

	r := c.Run(context.Background(), testFrame())

	assertNormalized(t, r)
	assert.Equal(t, models.FallbackNoFace, r.Fallback)
	assert.Empty(t, r.Faces)
	require.Len(t, ann.results, 1)
	assert.Empty(t, ann.results[0].Faces)
	require.NotNil(t, r.Annotated)
}

func TestRunZeroScoresUseDefault(t *testing.T) {
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		return []models.Face{{Box: models.Box{W: 4, H: 4}, Scores: models.Scores{}}}, nil
	}), nil, Config{})

	r := c.Run(context.Background(), testFrame())

	assert.Equal(t, models.FallbackNoScores, r.Fallback)
	assert.Equal(t, models.EmotionNeutral, r.Dominant)
	assert.InDelta(t, 0.4, r.Scores[models.EmotionNeutral], epsilon)
	assert.Len(t, r.Faces, 1)
}

func TestRunAggregatesFacesByMaximum(t *testing.T) {
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		return []models.Face{
			{Box: models.Box{X: 0, Y: 0, W: 2, H: 2}, Scores: models.Scores{models.EmotionHappy: 90, models.EmotionSad: 10}},
			{Box: models.Box{X: 4, Y: 2, W: 2, H: 2}, Scores: models.Scores{models.EmotionAngry: 80, models.EmotionSad: 20}},
		}, nil
	}), nil, Config{})

	r := c.Run(context.Background(), testFrame())

	assert.False(t, r.IsFallback())
	assert.Equal(t, models.EmotionHappy, r.Dominant)
	assert.InDelta(t, 90.0/190.0, r.Scores[models.EmotionHappy], epsilon)
	assert.InDelta(t, 80.0/190.0, r.Scores[models.EmotionAngry], epsilon)
	assert.InDelta(t, 20.0/190.0, r.Scores[models.EmotionSad], epsilon)
	require.Len(t, r.Faces, 2)
	assert.Equal(t, models.EmotionHappy, r.Faces[0].Dominant)
	assert.Equal(t, models.EmotionAngry, r.Faces[1].Dominant)
	assert.InDelta(t, 1.0, r.Faces[1].Scores.Sum(), epsilon)
	assert.Equal(t, 47, r.Percent[models.EmotionHappy])
	assert.Equal(t, 0, r.Percent[models.EmotionNeutral])
}

func TestRunJitterStaysWithinBounds(t *testing.T) {
	raw := models.Scores{
		models.EmotionAngry: 1, models.EmotionDisgust: 1, models.EmotionFear: 1,
		models.EmotionHappy: 1, models.EmotionSad: 1, models.EmotionSurprise: 1, models.EmotionNeutral: 4,
	}
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		return []models.Face{{Scores: raw}}, nil
	}), nil, Config{Jitter: 0.05}, seeded())

	base := divideBySum(raw)
	var differs bool
	for i := 0; i < 50; i++ {
		r := c.Run(context.Background(), testFrame())
		assertNormalized(t, r)
		for _, e := range models.Emotions {
			lo := base[e] * 0.95 / 1.05
			hi := base[e] * 1.05 / 0.95
			assert.GreaterOrEqual(t, r.Scores[e], lo-epsilon)
			assert.LessOrEqual(t, r.Scores[e], hi+epsilon)
			if math.Abs(r.Scores[e]-base[e]) > epsilon {
				differs = true
			}
		}
	}
	assert.True(t, differs, "jitter never changed a score")
}

func TestRunInvalidFrameReturnsDeterministicResult(t *testing.T) {
	called := false
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		called = true
		return nil, nil
	}), &recordingAnnotator{}, Config{Jitter: 0.05, FallbackEnabled: true})

	for _, f := range []*models.Frame{nil, {CameraID: 3, Width: 10, Height: 10, Data: []byte{1, 2}}} {
		r := c.Run(context.Background(), f)
		assert.Equal(t, models.FallbackInternalError, r.Fallback)
		assert.Equal(t, models.EmotionNeutral, r.Dominant)
		assert.InDelta(t, 0.30, r.Scores[models.EmotionNeutral], epsilon)
		assert.InDelta(t, 0.20, r.Scores[models.EmotionHappy], epsilon)
		assert.InDelta(t, 1.0, r.Scores.Sum(), epsilon)
		require.NotNil(t, r.Annotated)
		assert.True(t, r.Annotated.Valid())
	}
	assert.False(t, called)
}

func TestRunRecoversFromAnalyzerPanic(t *testing.T) {
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		panic("index out of range")
	}), &recordingAnnotator{}, Config{Jitter: 0.05, FallbackEnabled: true})

	var r *models.DetectionResult
	require.NotPanics(t, func() { r = c.Run(context.Background(), testFrame()) })

	assert.Equal(t, models.FallbackInternalError, r.Fallback)
	assert.Contains(t, r.FallbackReason, "index out of range")
	assert.InDelta(t, 1.0, r.Scores.Sum(), epsilon)
	require.NotNil(t, r.Annotated)
}

func TestRunAnnotatorPanicKeepsRawCopy(t *testing.T) {
	c := NewCycle(analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		return []models.Face{{Scores: models.Scores{models.EmotionSad: 1}}}, nil
	}), &recordingAnnotator{panics: true}, Config{})

	frame := testFrame()
	r := c.Run(context.Background(), frame)

	assert.Equal(t, models.EmotionSad, r.Dominant)
	require.NotNil(t, r.Annotated)
	assert.Equal(t, frame.Data, r.Annotated.Data)
	assert.NotSame(t, frame, r.Annotated)
}

func TestRunAppliesAnalyzeTimeout(t *testing.T) {
	c := NewCycle(analyzerFunc(func(ctx context.Context, _ *models.Frame) ([]models.Face, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}), nil, Config{AnalyzeTimeout: 20 * time.Millisecond, FallbackEnabled: true})

	start := time.Now()
	r := c.Run(context.Background(), testFrame())

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, models.FallbackAnalyzerError, r.Fallback)
}

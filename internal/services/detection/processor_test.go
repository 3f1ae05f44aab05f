package detection

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emotion-worker-go/internal/models"
)

type fakeStore struct {
	mu    sync.Mutex
	err   error
	saves []*models.DetectionResult
	raws  []*models.Frame
}

func (s *fakeStore) Save(_ context.Context, cameraID int64, raw, annotated *models.Frame, result *models.DetectionResult) (*models.ArtifactPaths, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.saves = append(s.saves, result)
	s.raws = append(s.raws, raw)
	return &models.ArtifactPaths{
		Raw:       "camera1/20240101_120000.jpg",
		Annotated: "camera1/20240101_120000_processed.jpg",
		Result:    "camera1/20240101_120000_result.json",
	}, nil
}

type fakeHistory struct {
	records []*models.HistoryRecord
	err     error
}

func (h *fakeHistory) InsertHistory(_ context.Context, rec *models.HistoryRecord) error {
	h.records = append(h.records, rec)
	return h.err
}

func happyAnalyzer() Analyzer {
	return analyzerFunc(func(context.Context, *models.Frame) ([]models.Face, error) {
		return []models.Face{{Box: models.Box{X: 1, Y: 1, W: 3, H: 3}, Scores: models.Scores{models.EmotionHappy: 0.8, models.EmotionNeutral: 0.2}}}, nil
	})
}

func TestProcessPersistsArtifactsAndHistory(t *testing.T) {
	store := &fakeStore{}
	hist := &fakeHistory{}
	p := NewProcessor(NewCycle(happyAnalyzer(), nil, Config{}), store, hist)

	result, paths, err := p.Process(context.Background(), testFrame())

	require.NoError(t, err)
	require.NotNil(t, paths)
	assert.Equal(t, models.EmotionHappy, result.Dominant)
	require.Len(t, store.saves, 1)
	assert.Same(t, result, store.saves[0])

	require.Len(t, hist.records, 1)
	rec := hist.records[0]
	assert.Equal(t, int64(11), rec.CameraID)
	assert.Equal(t, result.ID, rec.ResultID)
	assert.Equal(t, paths.Raw, rec.ImagePath)
	assert.Equal(t, paths.Annotated, rec.ProcessedPath)
	assert.Equal(t, paths.Result, rec.ResultPath)
	assert.Equal(t, models.EmotionHappy, rec.Dominant)
}

func TestProcessStoreFailureStillReturnsResult(t *testing.T) {
	store := &fakeStore{err: errors.New("disk full")}
	hist := &fakeHistory{}
	p := NewProcessor(NewCycle(happyAnalyzer(), nil, Config{}), store, hist)

	result, paths, err := p.Process(context.Background(), testFrame())

	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
	assert.Nil(t, paths)
	require.NotNil(t, result)
	assert.Equal(t, models.EmotionHappy, result.Dominant)
	assert.Empty(t, hist.records)
}

func TestProcessHistoryFailureIsNotFatal(t *testing.T) {
	store := &fakeStore{}
	hist := &fakeHistory{err: errors.New("connection reset")}
	p := NewProcessor(NewCycle(happyAnalyzer(), nil, Config{}), store, hist)

	_, paths, err := p.Process(context.Background(), testFrame())

	require.NoError(t, err)
	assert.NotNil(t, paths)
	assert.Len(t, hist.records, 1)
}

func TestProcessInvalidFrameSavesErrorCanvas(t *testing.T) {
	store := &fakeStore{}
	p := NewProcessor(NewCycle(happyAnalyzer(), nil, Config{}), store, nil)

	result, _, err := p.Process(context.Background(), &models.Frame{CameraID: 5})

	require.NoError(t, err)
	assert.Equal(t, models.FallbackInternalError, result.Fallback)
	require.Len(t, store.raws, 1)
	assert.True(t, store.raws[0].Valid())
	assert.Equal(t, int64(5), result.CameraID)
}

func TestProcessLogsFallbackOnlyWhenSubstituted(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	defer func() { log.Logger = prev }()

	p := NewProcessor(NewCycle(happyAnalyzer(), nil, Config{}), &fakeStore{}, nil)

	_, _, err := p.Process(context.Background(), testFrame())
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "detection_cycle_completed")
	assert.NotContains(t, buf.String(), `"fallback"`)

	buf.Reset()
	_, _, err = p.Process(context.Background(), &models.Frame{CameraID: 5})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"fallback":"`+string(models.FallbackInternalError)+`"`)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"emotion-worker-go/internal/config"
	"emotion-worker-go/internal/models"
	"emotion-worker-go/internal/services/camera"
	"emotion-worker-go/internal/services/pipeline"
	"emotion-worker-go/internal/services/publisher"
	"emotion-worker-go/internal/services/scheduler"
	"emotion-worker-go/internal/services/storage"
)

type fakePipeline struct {
	mu        sync.Mutex
	cameras   map[int64]*models.Camera
	nextID    int64
	activeErr error
	runResult *models.DetectionResult
	runPaths  *models.ArtifactPaths
	runErr    error
	uploaded  []byte
	schedules map[int64]models.TriggerSpec
	schedErr  error
	history   []models.HistoryRecord
	filter    models.HistoryFilter
	cleared   struct {
		cameraID    int64
		deleteFiles bool
		calls       int
	}
}

func newFakePipeline() *fakePipeline {
	return &fakePipeline{
		cameras:   map[int64]*models.Camera{},
		schedules: map[int64]models.TriggerSpec{},
	}
}

func notFound(id int64) error { return fmt.Errorf("%w: %d", pipeline.ErrCameraNotFound, id) }

func (f *fakePipeline) ListCameras(context.Context) ([]models.Camera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Camera
	for _, c := range f.cameras {
		out = append(out, *c)
	}
	return out, nil
}

func (f *fakePipeline) GetCamera(_ context.Context, id int64) (*models.Camera, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.cameras[id]
	if !ok {
		return nil, notFound(id)
	}
	cp := *c
	return &cp, nil
}

func (f *fakePipeline) CreateCamera(_ context.Context, c *models.Camera) error {
	if c.Transport == "" {
		return fmt.Errorf("%w: transport is required", pipeline.ErrInvalidCamera)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	c.ID = f.nextID
	cp := *c
	f.cameras[c.ID] = &cp
	return nil
}

func (f *fakePipeline) UpdateCamera(_ context.Context, c *models.Camera) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cameras[c.ID]; !ok {
		return notFound(c.ID)
	}
	cp := *c
	f.cameras[c.ID] = &cp
	return nil
}

func (f *fakePipeline) DeleteCamera(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.cameras[id]; !ok {
		return notFound(id)
	}
	delete(f.cameras, id)
	return nil
}

func (f *fakePipeline) ActivateCamera(_ context.Context, id int64) error {
	if _, err := f.GetCamera(context.Background(), id); err != nil {
		return err
	}
	if f.activeErr != nil {
		return f.activeErr
	}
	f.mu.Lock()
	f.cameras[id].Active = true
	f.mu.Unlock()
	return nil
}

func (f *fakePipeline) DeactivateCamera(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cameras[id]; ok {
		c.Active = false
	}
	return nil
}

func (f *fakePipeline) Status(_ context.Context, id int64) (*models.CameraStatusResponse, error) {
	c, err := f.GetCamera(context.Background(), id)
	if err != nil {
		return nil, err
	}
	return &models.CameraStatusResponse{CameraID: id, SessionState: "stopped", Sampling: c.Active}, nil
}

func (f *fakePipeline) RunOnce(_ context.Context, id int64) (*models.DetectionResult, *models.ArtifactPaths, error) {
	if _, err := f.GetCamera(context.Background(), id); err != nil {
		return nil, nil, err
	}
	return f.runResult, f.runPaths, f.runErr
}

func (f *fakePipeline) ProcessUpload(_ context.Context, id int64, data []byte) (*models.DetectionResult, *models.ArtifactPaths, error) {
	f.uploaded = data
	return &models.DetectionResult{ID: "upload", CameraID: id, Dominant: models.EmotionHappy}, &models.ArtifactPaths{Raw: "camera1/a.jpg"}, nil
}

func (f *fakePipeline) Reachable(_ context.Context, id int64) (bool, error) {
	if _, err := f.GetCamera(context.Background(), id); err != nil {
		return false, err
	}
	return true, nil
}

func (f *fakePipeline) SetSchedule(_ context.Context, id int64, trigger models.TriggerSpec) error {
	if f.schedErr != nil {
		return f.schedErr
	}
	if _, err := f.GetCamera(context.Background(), id); err != nil {
		return err
	}
	f.mu.Lock()
	f.schedules[id] = trigger
	f.mu.Unlock()
	return nil
}

func (f *fakePipeline) ClearSchedule(_ context.Context, id int64) error {
	f.mu.Lock()
	delete(f.schedules, id)
	f.mu.Unlock()
	return nil
}

func (f *fakePipeline) GetSchedule(id int64) models.ScheduleStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.schedules[id]
	if !ok {
		return models.ScheduleStatus{CameraID: id}
	}
	return models.ScheduleStatus{CameraID: id, Active: true, Trigger: &t}
}

func (f *fakePipeline) ListSchedules() []models.ScheduleStatus {
	f.mu.Lock()
	ids := make([]int64, 0, len(f.schedules))
	for id := range f.schedules {
		ids = append(ids, id)
	}
	f.mu.Unlock()
	out := make([]models.ScheduleStatus, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.GetSchedule(id))
	}
	return out
}

func (f *fakePipeline) History(_ context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, int, error) {
	f.filter = filter
	return f.history, len(f.history), nil
}

func (f *fakePipeline) ClearHistory(_ context.Context, cameraID int64, deleteFiles bool) (int, error) {
	f.cleared.cameraID = cameraID
	f.cleared.deleteFiles = deleteFiles
	f.cleared.calls++
	return 3, nil
}

type fakeArtifacts map[string][]byte

func (a fakeArtifacts) Read(_ context.Context, key string) ([]byte, string, error) {
	if strings.Contains(key, "..") {
		return nil, "", storage.ErrInvalidKey
	}
	data, ok := a[key]
	if !ok {
		return nil, "", storage.ErrNotFound
	}
	return data, "image/jpeg", nil
}

type fakePreview struct{ frames map[int64][]byte }

func (p *fakePreview) Latest(id int64) ([]byte, bool) {
	b, ok := p.frames[id]
	return b, ok
}

func (p *fakePreview) StreamMJPEGHTTP(w http.ResponseWriter, _ *http.Request, _ int64) {
	w.WriteHeader(http.StatusOK)
}

type noSessions struct{}

func (noSessions) ListSessions() []*camera.Session { return nil }

type testEnv struct {
	router  *gin.Engine
	pipe    *fakePipeline
	preview *fakePreview
	hub     *publisher.Hub
	checks  map[string]Pinger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		router:  gin.New(),
		pipe:    newFakePipeline(),
		preview: &fakePreview{frames: map[int64][]byte{}},
		hub:     publisher.NewHub(4),
		checks:  map[string]Pinger{"store": PingFunc(func(context.Context) error { return nil })},
	}
	t.Cleanup(env.hub.Close)

	cam := NewCameraHandler(env.pipe, env.preview)
	sched := NewScheduleHandler(env.pipe)
	hist := NewHistoryHandler(env.pipe, fakeArtifacts{"camera1/20240101_120000.jpg": []byte{0xFF, 0xD8}})
	cfg := &config.Config{WorkerID: "test-worker", Version: "test"}
	health := NewHealthHandler(cfg, time.Now(), env.checks)
	stream := NewStreamHandler(env.hub)
	system := NewSystemHandler(cfg.WorkerID, time.Now(), noSessions{}, nil)

	r := env.router
	r.GET("/", health.WorkerInfo)
	r.GET("/health", health.HealthCheck)
	r.GET("/cameras", cam.ListCameras)
	r.POST("/cameras", cam.CreateCamera)
	r.GET("/cameras/:id", cam.GetCamera)
	r.PUT("/cameras/:id", cam.UpdateCamera)
	r.DELETE("/cameras/:id", cam.DeleteCamera)
	r.POST("/cameras/:id/activate", cam.Activate)
	r.POST("/cameras/:id/deactivate", cam.Deactivate)
	r.POST("/cameras/:id/run-once", cam.RunOnce)
	r.POST("/cameras/:id/process", cam.ProcessUpload)
	r.GET("/cameras/:id/reachable", cam.Reachable)
	r.GET("/cameras/:id/frame", cam.GetLatestFrame)
	r.GET("/cameras/:id/schedule", sched.GetSchedule)
	r.PUT("/cameras/:id/schedule", sched.SetSchedule)
	r.DELETE("/cameras/:id/schedule", sched.ClearSchedule)
	r.GET("/schedules", sched.ListSchedules)
	r.GET("/history", hist.ListHistory)
	r.DELETE("/history", hist.ClearHistory)
	r.GET("/artifacts/*key", hist.GetArtifact)
	r.GET("/ws/results", stream.StreamResults)
	r.GET("/system/stats", system.GetStats)
	r.GET("/system/sessions", system.ListSessions)
	return env
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) addCamera(t *testing.T) int64 {
	t.Helper()
	w := e.do(http.MethodPost, "/cameras", CameraRequest{Name: "lobby", Transport: "webcam"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cam models.Camera
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cam))
	return cam.ID
}

func TestCameraCRUD(t *testing.T) {
	env := newTestEnv(t)
	id := env.addCamera(t)

	w := env.do(http.MethodGet, fmt.Sprintf("/cameras/%d", id), nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"lobby"`)

	w = env.do(http.MethodPut, fmt.Sprintf("/cameras/%d", id), CameraRequest{Name: "hall", Transport: "webcam"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"hall"`)

	w = env.do(http.MethodGet, "/cameras", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodDelete, fmt.Sprintf("/cameras/%d", id), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodGet, fmt.Sprintf("/cameras/%d", id), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateCameraValidation(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/cameras", map[string]string{"location": "nowhere"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPost, "/cameras", CameraRequest{Name: "lobby"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "transport")
}

func TestInvalidCameraID(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/cameras/abc", "/cameras/0", "/cameras/-4"} {
		w := env.do(http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestActivateRejectedIsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	id := env.addCamera(t)

	w := env.do(http.MethodPost, "/cameras/99/activate", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.pipe.activeErr = fmt.Errorf("%w: camera %d: %w", pipeline.ErrActivationRejected, id, errors.New("device busy"))
	w = env.do(http.MethodPost, fmt.Sprintf("/cameras/%d/activate", id), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "device busy")

	env.pipe.activeErr = nil
	w = env.do(http.MethodPost, fmt.Sprintf("/cameras/%d/activate", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sampling":true`)

	w = env.do(http.MethodPost, fmt.Sprintf("/cameras/%d/deactivate", id), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sampling":false`)
}

func TestRunOnce(t *testing.T) {
	env := newTestEnv(t)
	id := env.addCamera(t)

	env.pipe.runErr = fmt.Errorf("%w: camera %d: %w", pipeline.ErrCaptureFailed, id, errors.New("read timeout"))
	w := env.do(http.MethodPost, fmt.Sprintf("/cameras/%d/run-once", id), nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	env.pipe.runResult = &models.DetectionResult{ID: "r1", CameraID: id, Dominant: models.EmotionSad}
	env.pipe.runErr = errors.New("disk full")
	w = env.do(http.MethodPost, fmt.Sprintf("/cameras/%d/run-once", id), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp DetectionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "disk full", resp.Warning)
	assert.Nil(t, resp.Paths)
	assert.Equal(t, models.EmotionSad, resp.Result.Dominant)
}

func TestProcessUpload(t *testing.T) {
	env := newTestEnv(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("image", "face.jpg")
	require.NoError(t, err)
	_, _ = part.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0})
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/cameras/3/process", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, env.pipe.uploaded)
	assert.Contains(t, w.Body.String(), `"image_path":"camera1/a.jpg"`)

	w = env.do(http.MethodPost, "/cameras/3/process", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLatestFrame(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/cameras/1/frame", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	env.preview.frames[1] = []byte{0xFF, 0xD8, 0x01}
	w = env.do(http.MethodGet, "/cameras/1/frame", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	assert.Equal(t, []byte{0xFF, 0xD8, 0x01}, w.Body.Bytes())
}

func TestScheduleEndpoints(t *testing.T) {
	env := newTestEnv(t)
	id := env.addCamera(t)
	path := fmt.Sprintf("/cameras/%d/schedule", id)

	w := env.do(http.MethodPut, path, ScheduleRequest{Kind: "weekly"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodPut, "/cameras/42/schedule", ScheduleRequest{Kind: "interval", IntervalMinutes: 5})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(http.MethodPut, path, ScheduleRequest{Kind: "fixed_time", Hour: "8", Minute: "30"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var st models.ScheduleStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.True(t, st.Active)
	require.NotNil(t, st.Trigger)
	assert.Equal(t, models.TriggerCalendar, st.Trigger.Kind)

	w = env.do(http.MethodGet, "/schedules", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"active":true`)

	w = env.do(http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodGet, path, nil)
	assert.Contains(t, w.Body.String(), `"active":false`)

	env.pipe.schedErr = fmt.Errorf("%w: hour 25 out of range", scheduler.ErrInvalidTrigger)
	w = env.do(http.MethodPut, path, ScheduleRequest{Kind: "calendar", Hour: "25"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHistoryEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.pipe.history = []models.HistoryRecord{{ID: 2, CameraID: 1}, {ID: 1, CameraID: 1}}

	w := env.do(http.MethodGet, "/history?camera_id=1&limit=5&offset=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page HistoryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Len(t, page.Records, 2)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, models.HistoryFilter{CameraID: 1, Limit: 5, Offset: 2}, env.pipe.filter)

	w = env.do(http.MethodGet, "/history?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(http.MethodDelete, "/history?camera_id=1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, env.pipe.cleared.calls)

	w = env.do(http.MethodDelete, "/history?camera_id=1&confirm=true&delete_files=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"deleted":3`)
	assert.Equal(t, int64(1), env.pipe.cleared.cameraID)
	assert.True(t, env.pipe.cleared.deleteFiles)
}

func TestGetArtifact(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/artifacts/camera1/20240101_120000.jpg", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))

	w = env.do(http.MethodGet, "/artifacts/camera1/missing.jpg", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthDegraded(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)

	env.checks["analyzer"] = PingFunc(func(context.Context) error { return errors.New("connection refused") })
	w = env.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), "connection refused")
}

func TestSystemEndpoints(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/system/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"worker_id":"test-worker"`)
	assert.Contains(t, w.Body.String(), `"sessions":0`)

	w = env.do(http.MethodGet, "/system/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestResultStreamDeliversCameraEvents(t *testing.T) {
	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/results?camera_id=2"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	env.hub.Broadcast(&models.ResultEvent{CameraID: 1, Dominant: models.EmotionAngry})
	env.hub.Broadcast(&models.ResultEvent{CameraID: 2, Dominant: models.EmotionHappy})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got models.ResultEvent
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, int64(2), got.CameraID)
	assert.Equal(t, models.EmotionHappy, got.Dominant)

	conn.Close()
	assert.Eventually(t, func() bool { return env.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

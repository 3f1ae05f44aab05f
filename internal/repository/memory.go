package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"emotion-worker-go/internal/models"
)

// MemoryStore keeps everything in process. Used when no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	cameras   map[int64]models.Camera
	schedules map[int64]models.ScheduleEntry
	history   []models.HistoryRecord
	nextCam   int64
	nextSched int64
	nextHist  int64
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cameras:   make(map[int64]models.Camera),
		schedules: make(map[int64]models.ScheduleEntry),
		now:       time.Now,
	}
}

func (s *MemoryStore) GetCamera(_ context.Context, id int64) (*models.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cameras[id]
	if !ok {
		return nil, fmt.Errorf("camera %d: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (s *MemoryStore) ListCameras(_ context.Context) ([]models.Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Camera, 0, len(s.cameras))
	for _, c := range s.cameras {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) CreateCamera(_ context.Context, c *models.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextCam++
	c.ID = s.nextCam
	c.CreatedAt = s.now()
	c.UpdatedAt = c.CreatedAt
	if c.ConnectionState == "" {
		c.ConnectionState = models.ConnectionDisconnected
	}
	s.cameras[c.ID] = *c
	return nil
}

func (s *MemoryStore) UpdateCamera(_ context.Context, c *models.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.cameras[c.ID]
	if !ok {
		return fmt.Errorf("camera %d: %w", c.ID, ErrNotFound)
	}
	cur.Name = c.Name
	cur.Location = c.Location
	cur.Transport = c.Transport
	cur.Address = c.Address
	cur.Port = c.Port
	cur.StreamURL = c.StreamURL
	cur.DeviceIndex = c.DeviceIndex
	cur.SamplingInterval = c.SamplingInterval
	cur.UpdatedAt = s.now()
	s.cameras[c.ID] = cur
	c.UpdatedAt = cur.UpdatedAt
	return nil
}

func (s *MemoryStore) DeleteCamera(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cameras[id]; !ok {
		return fmt.Errorf("camera %d: %w", id, ErrNotFound)
	}
	delete(s.cameras, id)
	delete(s.schedules, id)
	return nil
}

func (s *MemoryStore) SetCameraActive(_ context.Context, id int64, active bool) error {
	return s.mutateCamera(id, func(c *models.Camera) { c.Active = active })
}

func (s *MemoryStore) UpdateConnectionState(_ context.Context, id int64, state models.ConnectionState, lastConnected *time.Time) error {
	return s.mutateCamera(id, func(c *models.Camera) {
		c.ConnectionState = state
		if lastConnected != nil {
			t := *lastConnected
			c.LastConnected = &t
		}
	})
}

func (s *MemoryStore) mutateCamera(id int64, fn func(*models.Camera)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cameras[id]
	if !ok {
		return fmt.Errorf("camera %d: %w", id, ErrNotFound)
	}
	fn(&c)
	c.UpdatedAt = s.now()
	s.cameras[id] = c
	return nil
}

func (s *MemoryStore) ListSchedules(_ context.Context) ([]models.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.ScheduleEntry, 0, len(s.schedules))
	for _, e := range s.schedules {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CameraID < out[j].CameraID })
	return out, nil
}

func (s *MemoryStore) GetSchedule(_ context.Context, cameraID int64) (*models.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.schedules[cameraID]
	if !ok {
		return nil, fmt.Errorf("schedule for camera %d: %w", cameraID, ErrNotFound)
	}
	return &e, nil
}

func (s *MemoryStore) UpsertSchedule(_ context.Context, e *models.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if cur, ok := s.schedules[e.CameraID]; ok {
		e.ID = cur.ID
		e.CreatedAt = cur.CreatedAt
	} else {
		s.nextSched++
		e.ID = s.nextSched
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	s.schedules[e.CameraID] = *e
	return nil
}

func (s *MemoryStore) DeleteSchedule(_ context.Context, cameraID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schedules, cameraID)
	return nil
}

func (s *MemoryStore) InsertHistory(_ context.Context, rec *models.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextHist++
	rec.ID = s.nextHist
	cp := *rec
	cp.Scores = rec.Scores.Clone()
	s.history = append(s.history, cp)
	return nil
}

func (s *MemoryStore) ListHistory(_ context.Context, filter models.HistoryFilter) ([]models.HistoryRecord, int, error) {
	filter = normalizeFilter(filter)

	s.mu.RLock()
	matched := make([]models.HistoryRecord, 0, len(s.history))
	for _, r := range s.history {
		if filter.CameraID == 0 || r.CameraID == filter.CameraID {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	if filter.Offset >= total {
		return []models.HistoryRecord{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (s *MemoryStore) ClearHistory(_ context.Context, cameraID int64) ([]models.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed []models.HistoryRecord
	kept := s.history[:0]
	for _, r := range s.history {
		if cameraID == 0 || r.CameraID == cameraID {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	s.history = kept
	return removed, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

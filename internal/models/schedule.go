package models

import (
	"fmt"
	"strings"
	"time"
)

// TriggerKind is the schedule trigger type
type TriggerKind string

const (
	TriggerInterval TriggerKind = "interval"
	TriggerCalendar TriggerKind = "calendar"
)

// ParseTriggerKind accepts the canonical names and the legacy "fixed_time" value
func ParseTriggerKind(s string) (TriggerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "interval", "":
		return TriggerInterval, nil
	case "calendar", "fixed_time", "cron":
		return TriggerCalendar, nil
	default:
		return "", fmt.Errorf("unknown trigger kind %q", s)
	}
}

// TriggerSpec describes when a scheduled capture fires.
// Hour and Minute accept comma separated values and a-b ranges, e.g. "8,12-14".
type TriggerSpec struct {
	Kind            TriggerKind `json:"kind"`
	IntervalMinutes int         `json:"interval_minutes,omitempty"`
	Hour            string      `json:"hour,omitempty"`
	Minute          string      `json:"minute,omitempty"`
}

// ScheduleEntry binds a camera to a trigger
type ScheduleEntry struct {
	ID        int64       `json:"id"`
	CameraID  int64       `json:"camera_id"`
	Trigger   TriggerSpec `json:"trigger"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// ScheduleStatus answers whether a camera has a live schedule and when it fires next
type ScheduleStatus struct {
	CameraID  int64        `json:"camera_id"`
	Active    bool         `json:"active"`
	NextFire  *time.Time   `json:"next_fire,omitempty"`
	LastFire  *time.Time   `json:"last_fire,omitempty"`
	FireCount int64        `json:"fire_count"`
	Trigger   *TriggerSpec `json:"trigger,omitempty"`
}

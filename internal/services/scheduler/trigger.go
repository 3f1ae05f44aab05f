package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"emotion-worker-go/internal/models"
)

// ErrInvalidTrigger wraps every trigger validation failure
var ErrInvalidTrigger = errors.New("invalid trigger")

// ParseTrigger validates spec and converts it into a cron schedule
func ParseTrigger(spec models.TriggerSpec) (cron.Schedule, error) {
	switch spec.Kind {
	case models.TriggerInterval:
		if spec.IntervalMinutes < 1 {
			return nil, fmt.Errorf("%w: interval must be at least 1 minute, got %d", ErrInvalidTrigger, spec.IntervalMinutes)
		}
		return cron.Every(time.Duration(spec.IntervalMinutes) * time.Minute), nil

	case models.TriggerCalendar:
		hour := strings.TrimSpace(spec.Hour)
		minute := strings.TrimSpace(spec.Minute)
		if hour == "" {
			return nil, fmt.Errorf("%w: calendar trigger needs an hour pattern", ErrInvalidTrigger)
		}
		if minute == "" {
			minute = "0"
		}
		if err := validateField(hour, 0, 23); err != nil {
			return nil, fmt.Errorf("%w: hour %q: %v", ErrInvalidTrigger, hour, err)
		}
		if err := validateField(minute, 0, 59); err != nil {
			return nil, fmt.Errorf("%w: minute %q: %v", ErrInvalidTrigger, minute, err)
		}
		sched, err := cron.ParseStandard(minute + " " + hour + " * * *")
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
		}
		return sched, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidTrigger, spec.Kind)
	}
}

// validateField accepts "*", single values and a-b ranges joined by commas
func validateField(field string, lo, hi int) error {
	if field == "*" {
		return nil
	}
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return errors.New("empty list element")
		}
		from, to, isRange := strings.Cut(part, "-")
		a, err := parseBounded(from, lo, hi)
		if err != nil {
			return err
		}
		if !isRange {
			continue
		}
		b, err := parseBounded(to, lo, hi)
		if err != nil {
			return err
		}
		if a > b {
			return fmt.Errorf("range %d-%d is reversed", a, b)
		}
	}
	return nil
}

func parseBounded(s string, lo, hi int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%d is outside %d-%d", n, lo, hi)
	}
	return n, nil
}

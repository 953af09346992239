// Package availability computes free showing slots from provider busy
// intervals under a business-hours policy.
package availability

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"showings/internal/domain"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type TokenSource interface {
	GetValidAccessToken(ctx context.Context, userID string) (string, error)
}

type Calendar interface {
	BusyIntervals(ctx context.Context, accessToken string, windowStart, windowEnd time.Time) ([]domain.BusyInterval, error)
}

const maxWindowDays = 60

type Service struct {
	tokens   TokenSource
	calendar Calendar
	hours    domain.BusinessHours
	now      func() time.Time
}

func NewService(tokens TokenSource, calendar Calendar, hours domain.BusinessHours) *Service {
	if hours.IsZero() {
		hours = domain.DefaultBusinessHours()
	}
	return &Service{
		tokens:   tokens,
		calendar: calendar,
		hours:    hours,
		now:      time.Now,
	}
}

// GetAvailability returns every free slot in [now, now+windowDays), in
// chronological order. It never truncates; the caller decides how many slots
// to surface. A zero-value hours argument uses the service policy.
func (s *Service) GetAvailability(ctx context.Context, userID string, windowDays int, hours domain.BusinessHours) ([]domain.TimeSlot, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("user_id is required")
	}
	if windowDays < 1 {
		return nil, validationError("window_days must be at least 1")
	}
	if windowDays > maxWindowDays {
		return nil, validationError(fmt.Sprintf("window_days must be at most %d", maxWindowDays))
	}
	if hours.IsZero() {
		hours = s.hours
	}
	if hours.EndHour <= hours.StartHour || hours.StartHour < 0 || hours.EndHour > 24 {
		return nil, validationError("invalid business hours")
	}
	if hours.SlotLength <= 0 {
		return nil, validationError("invalid slot length")
	}

	token, err := s.tokens.GetValidAccessToken(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	windowEnd := now.AddDate(0, 0, windowDays)

	busy, err := s.calendar.BusyIntervals(ctx, token, now, windowEnd)
	if err != nil {
		return nil, err
	}

	// Zero busy intervals is a wide-open calendar, so the full grid stands.
	free := domain.SubtractBusy(domain.SlotGrid(now, windowEnd, hours), busy)

	sort.Slice(free, func(i, j int) bool {
		return free[i].StartTime.Before(free[j].StartTime)
	})
	return free, nil
}

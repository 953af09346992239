// Package booking creates showing appointments on the provider calendar with
// idempotent retries and a booking-time conflict re-check.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"showings/internal/domain"
	"showings/internal/msgraph"
	"showings/internal/store"
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
	CreateEvent(ctx context.Context, accessToken string, ev msgraph.Event) (string, error)
}

const DefaultRecordRetention = 24 * time.Hour

type Service struct {
	tokens    TokenSource
	calendar  Calendar
	records   store.BookingRecordStore
	retention time.Duration
	log       *slog.Logger
	now       func() time.Time
}

func NewService(tokens TokenSource, calendar Calendar, records store.BookingRecordStore, retention time.Duration, log *slog.Logger) *Service {
	if retention <= 0 {
		retention = DefaultRecordRetention
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		tokens:    tokens,
		calendar:  calendar,
		records:   records,
		retention: retention,
		log:       log.With(slog.String("component", "booking")),
		now:       time.Now,
	}
}

type CreateInput struct {
	UserID          string
	RequestID       string
	PropertyAddress string
	StartTime       time.Time
	EndTime         time.Time
	AttendeeName    string
	AttendeeEmail   string
}

// CreateAppointment books the requested slot. A requestID seen before within
// the retention window returns the original appointment without touching the
// provider; otherwise availability is re-verified at booking time and the
// event created. Conflicts come back as status=conflict with a nil error;
// provider create failures return status=failed alongside the error and leave
// no idempotency record, so a legitimate retry can proceed.
func (s *Service) CreateAppointment(ctx context.Context, in CreateInput) (domain.Appointment, error) {
	if strings.TrimSpace(in.UserID) == "" {
		return domain.Appointment{}, validationError("user_id is required")
	}
	if strings.TrimSpace(in.RequestID) == "" {
		return domain.Appointment{}, validationError("request_id is required")
	}
	address := strings.TrimSpace(in.PropertyAddress)
	if address == "" {
		return domain.Appointment{}, validationError("property_address is required")
	}
	attendee := strings.TrimSpace(in.AttendeeName)
	if attendee == "" {
		return domain.Appointment{}, validationError("attendee_name is required")
	}

	start := in.StartTime.UTC()
	end := in.EndTime.UTC()
	if !end.After(start) {
		return domain.Appointment{}, validationError("end_time must be after start_time")
	}

	log := s.log.With(slog.String("user_id", in.UserID), slog.String("request_id", in.RequestID))

	token, err := s.tokens.GetValidAccessToken(ctx, in.UserID)
	if err != nil {
		return domain.Appointment{}, err
	}

	prev, err := s.records.Get(ctx, in.UserID, in.RequestID)
	if err == nil {
		log.Info("duplicate booking request collapsed", slog.String("event_id", prev.ExternalEventID))
		return prev, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.Appointment{}, fmt.Errorf("booking record read: %w", err)
	}

	appt := domain.Appointment{
		UserID:          in.UserID,
		RequestID:       in.RequestID,
		PropertyAddress: address,
		StartTime:       start,
		EndTime:         end,
		AttendeeName:    attendee,
		AttendeeEmail:   strings.TrimSpace(in.AttendeeEmail),
		CreatedAt:       s.now().UTC(),
	}

	// The gap between "slot was shown free" and "user confirmed" can be
	// arbitrarily long; never trust an earlier availability query.
	busy, err := s.calendar.BusyIntervals(ctx, token, start, end)
	if err != nil {
		return domain.Appointment{}, err
	}
	for _, b := range busy {
		if start.Before(b.EndTime) && end.After(b.StartTime) {
			appt.Status = domain.AppointmentStatusConflict
			log.Info("slot taken before booking", slog.Time("start", start))
			return appt, nil
		}
	}

	eventID, err := s.calendar.CreateEvent(ctx, token, msgraph.Event{
		Subject:       "Property Showing: " + address,
		Body:          "Showing for " + attendee,
		StartTime:     start,
		EndTime:       end,
		AttendeeName:  attendee,
		AttendeeEmail: appt.AttendeeEmail,
	})
	if errors.Is(err, domain.ErrConflict) {
		appt.Status = domain.AppointmentStatusConflict
		log.Info("provider reported concurrent conflict")
		return appt, nil
	}
	if err != nil {
		appt.Status = domain.AppointmentStatusFailed
		return appt, err
	}

	appt.ExternalEventID = eventID
	appt.Status = domain.AppointmentStatusConfirmed

	// The event already exists on the provider, so a failed record write must
	// not fail the booking; it only weakens retry collapsing.
	if err := s.records.Put(ctx, appt, s.now().Add(s.retention)); err != nil {
		log.Warn("booking record write failed", slog.Any("err", err))
	}

	log.Info("appointment created", slog.String("event_id", eventID), slog.Time("start", start))
	return appt, nil
}

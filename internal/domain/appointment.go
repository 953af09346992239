package domain

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

type AppointmentStatus string

const (
	AppointmentStatusConfirmed AppointmentStatus = "confirmed"
	AppointmentStatusConflict  AppointmentStatus = "conflict"
	AppointmentStatusFailed    AppointmentStatus = "failed"
)

// Appointment is one booking attempt and its outcome. ExternalEventID is the
// provider-assigned identifier and the single source of truth for whether the
// appointment exists; RequestID only collapses duplicate attempts before any
// provider call is made.
type Appointment struct {
	UserID          string            `json:"user_id"`
	RequestID       string            `json:"request_id"`
	PropertyAddress string            `json:"property_address"`
	StartTime       time.Time         `json:"start_time"`
	EndTime         time.Time         `json:"end_time"`
	AttendeeName    string            `json:"attendee_name"`
	AttendeeEmail   string            `json:"attendee_email,omitempty"`
	ExternalEventID string            `json:"external_event_id,omitempty"`
	Status          AppointmentStatus `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
}

// BookingRecord is the persisted idempotency record for a confirmed booking,
// keyed by (user_id, request_id) and pruned after a retention window.
type BookingRecord struct {
	bun.BaseModel `bun:"table:booking_records,alias:booking_record"`

	UserID          string    `bun:"user_id,pk"`
	RequestID       string    `bun:"request_id,pk"`
	PropertyAddress string    `bun:"property_address,notnull"`
	StartTime       time.Time `bun:"start_time,notnull"`
	EndTime         time.Time `bun:"end_time,notnull"`
	AttendeeName    string    `bun:"attendee_name,notnull"`
	AttendeeEmail   string    `bun:"attendee_email"`
	ExternalEventID string    `bun:"external_event_id,notnull"`
	ExpiresAt       time.Time `bun:"expires_at,notnull"`
	CreatedAt       time.Time `bun:"created_at,notnull"`
}

func (r *BookingRecord) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	if _, ok := query.(*bun.InsertQuery); ok {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now().UTC()
		}
	}
	return nil
}

func NewBookingRecord(appt Appointment, expiresAt time.Time) BookingRecord {
	return BookingRecord{
		UserID:          appt.UserID,
		RequestID:       appt.RequestID,
		PropertyAddress: appt.PropertyAddress,
		StartTime:       appt.StartTime,
		EndTime:         appt.EndTime,
		AttendeeName:    appt.AttendeeName,
		AttendeeEmail:   appt.AttendeeEmail,
		ExternalEventID: appt.ExternalEventID,
		ExpiresAt:       expiresAt,
		CreatedAt:       appt.CreatedAt,
	}
}

// Appointment reconstructs the confirmed appointment a record was written for.
func (r BookingRecord) Appointment() Appointment {
	return Appointment{
		UserID:          r.UserID,
		RequestID:       r.RequestID,
		PropertyAddress: r.PropertyAddress,
		StartTime:       r.StartTime,
		EndTime:         r.EndTime,
		AttendeeName:    r.AttendeeName,
		AttendeeEmail:   r.AttendeeEmail,
		ExternalEventID: r.ExternalEventID,
		Status:          AppointmentStatusConfirmed,
		CreatedAt:       r.CreatedAt,
	}
}

package store

import (
	"context"
	"time"

	"showings/internal/domain"
)

// BookingRecordStore tracks confirmed bookings by (userID, requestID) so a
// retried request returns the original appointment instead of creating a
// second provider event. Records past their expiry behave as absent.
type BookingRecordStore interface {
	Get(ctx context.Context, userID, requestID string) (domain.Appointment, error)
	Put(ctx context.Context, appt domain.Appointment, expiresAt time.Time) error
}

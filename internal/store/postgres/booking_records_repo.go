package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"showings/internal/domain"
	"showings/internal/store"
)

type BookingRecordRepo struct {
	db  *bun.DB
	now func() time.Time
}

func NewBookingRecordRepo(db *bun.DB) *BookingRecordRepo {
	return &BookingRecordRepo{db: db, now: time.Now}
}

func (r *BookingRecordRepo) Get(ctx context.Context, userID, requestID string) (domain.Appointment, error) {
	var rec domain.BookingRecord
	err := r.db.NewSelect().
		Model(&rec).
		Where("user_id = ?", userID).
		Where("request_id = ?", requestID).
		Where("expires_at > ?", r.now().UTC()).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Appointment{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Appointment{}, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return rec.Appointment(), nil
}

func (r *BookingRecordRepo) Put(ctx context.Context, appt domain.Appointment, expiresAt time.Time) error {
	rec := domain.NewBookingRecord(appt, expiresAt.UTC())

	// First writer wins within the retention window: a record only ever
	// describes the booking that actually reached the provider. A leftover
	// row whose window has passed is already invisible to Get and must not
	// block recording the new booking, so it gets replaced in place.
	_, err := r.db.NewInsert().
		Model(&rec).
		On("CONFLICT (user_id, request_id) DO UPDATE").
		Set("property_address = EXCLUDED.property_address").
		Set("start_time = EXCLUDED.start_time").
		Set("end_time = EXCLUDED.end_time").
		Set("attendee_name = EXCLUDED.attendee_name").
		Set("attendee_email = EXCLUDED.attendee_email").
		Set("external_event_id = EXCLUDED.external_event_id").
		Set("expires_at = EXCLUDED.expires_at").
		Set("created_at = EXCLUDED.created_at").
		Where("booking_record.expires_at <= ?", r.now().UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return nil
}

// PruneExpired deletes records past their retention window. A periodic
// caller owns the schedule; the core only requires that Get ignores expired
// rows.
func (r *BookingRecordRepo) PruneExpired(ctx context.Context) (int64, error) {
	res, err := r.db.NewDelete().
		Model((*domain.BookingRecord)(nil)).
		Where("expires_at <= ?", r.now().UTC()).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", store.ErrStorage, err)
	}
	return res.RowsAffected()
}

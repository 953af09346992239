// Package memory holds the in-process booking-record store used with the
// file credential backend, where no database is available. Records survive
// only for the life of the process; the durable deployment uses postgres.
package memory

import (
	"context"
	"sync"
	"time"

	"showings/internal/domain"
	"showings/internal/store"
)

type BookingRecordStore struct {
	mu      sync.Mutex
	records map[string]entry
	now     func() time.Time
}

type entry struct {
	appt      domain.Appointment
	expiresAt time.Time
}

func NewBookingRecordStore() *BookingRecordStore {
	return &BookingRecordStore{
		records: make(map[string]entry),
		now:     time.Now,
	}
}

func key(userID, requestID string) string {
	return userID + "\x00" + requestID
}

func (s *BookingRecordStore) Get(ctx context.Context, userID, requestID string) (domain.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune()
	e, ok := s.records[key(userID, requestID)]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return e.appt, nil
}

func (s *BookingRecordStore) Put(ctx context.Context, appt domain.Appointment, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prune()
	k := key(appt.UserID, appt.RequestID)
	if _, ok := s.records[k]; ok {
		// First writer wins, matching the postgres ON CONFLICT DO NOTHING.
		return nil
	}
	s.records[k] = entry{appt: appt, expiresAt: expiresAt}
	return nil
}

func (s *BookingRecordStore) prune() {
	now := s.now()
	for k, e := range s.records {
		if !e.expiresAt.After(now) {
			delete(s.records, k)
		}
	}
}

package domain

import (
	"testing"
	"time"
)

// 2026-01-02 is a Friday.
var friday = time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

func TestSlotGrid_FullBusinessDay(t *testing.T) {
	slots := SlotGrid(friday, friday.AddDate(0, 0, 1), DefaultBusinessHours())

	if len(slots) != 16 {
		t.Fatalf("slot count = %d, want 16", len(slots))
	}
	first := slots[0]
	if !first.StartTime.Equal(friday.Add(9 * time.Hour)) {
		t.Fatalf("first slot start = %v, want 09:00", first.StartTime)
	}
	last := slots[len(slots)-1]
	if !last.EndTime.Equal(friday.Add(17 * time.Hour)) {
		t.Fatalf("last slot end = %v, want 17:00", last.EndTime)
	}
	for _, s := range slots {
		if s.DurationMinutes() != 30 {
			t.Fatalf("slot %v duration = %d minutes, want 30", s.StartTime, s.DurationMinutes())
		}
	}
}

func TestSlotGrid_TwoDayWindowWithWeekendDay(t *testing.T) {
	// Friday + Saturday: only the weekday contributes slots.
	slots := SlotGrid(friday, friday.AddDate(0, 0, 2), DefaultBusinessHours())

	if len(slots) != 16 {
		t.Fatalf("slot count = %d, want 16 (weekday only)", len(slots))
	}
	for _, s := range slots {
		if s.StartTime.Weekday() != time.Friday {
			t.Fatalf("slot on %v, want all slots on Friday", s.StartTime.Weekday())
		}
	}
}

func TestSlotGrid_WeekendOnlyWindowIsEmpty(t *testing.T) {
	saturday := friday.AddDate(0, 0, 1)
	slots := SlotGrid(saturday, saturday.AddDate(0, 0, 2), DefaultBusinessHours())

	if len(slots) != 0 {
		t.Fatalf("slot count = %d, want 0 for a weekend-only window", len(slots))
	}
}

func TestSlotGrid_PartiallyElapsedFirstDay(t *testing.T) {
	// Window opens mid-morning: the 10:00 slot already started and is gone,
	// and the grid stays aligned to the half-hour, not to the window start.
	windowStart := friday.Add(10*time.Hour + 15*time.Minute)
	slots := SlotGrid(windowStart, friday.AddDate(0, 0, 1), DefaultBusinessHours())

	if len(slots) == 0 {
		t.Fatalf("expected slots")
	}
	if !slots[0].StartTime.Equal(friday.Add(10*time.Hour + 30*time.Minute)) {
		t.Fatalf("first slot start = %v, want 10:30", slots[0].StartTime)
	}
	for _, s := range slots {
		if s.StartTime.Before(windowStart) {
			t.Fatalf("slot %v starts before window start %v", s.StartTime, windowStart)
		}
	}
}

func TestSlotGrid_Idempotent(t *testing.T) {
	a := SlotGrid(friday, friday.AddDate(0, 0, 7), DefaultBusinessHours())
	b := SlotGrid(friday, friday.AddDate(0, 0, 7), DefaultBusinessHours())

	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if !a[i].StartTime.Equal(b[i].StartTime) || !a[i].EndTime.Equal(b[i].EndTime) {
			t.Fatalf("slot %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSubtractBusy_BoundaryTouchIsKept(t *testing.T) {
	grid := SlotGrid(friday, friday.AddDate(0, 0, 1), DefaultBusinessHours())
	busy := []BusyInterval{{
		StartTime: friday.Add(10 * time.Hour),
		EndTime:   friday.Add(10*time.Hour + 30*time.Minute),
	}}

	free := SubtractBusy(grid, busy)

	if len(free) != len(grid)-1 {
		t.Fatalf("free count = %d, want %d", len(free), len(grid)-1)
	}
	for _, s := range free {
		if s.StartTime.Equal(friday.Add(10 * time.Hour)) {
			t.Fatalf("10:00 slot should be excluded")
		}
	}
	// Slots touching the busy interval on either side survive.
	wantKept := []time.Duration{9*time.Hour + 30*time.Minute, 10*time.Hour + 30*time.Minute}
	for _, offset := range wantKept {
		found := false
		for _, s := range free {
			if s.StartTime.Equal(friday.Add(offset)) {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("slot at offset %v should be kept", offset)
		}
	}
}

func TestSubtractBusy_OverlappingIntervalsActAsUnion(t *testing.T) {
	grid := SlotGrid(friday, friday.AddDate(0, 0, 1), DefaultBusinessHours())
	busy := []BusyInterval{
		{StartTime: friday.Add(10 * time.Hour), EndTime: friday.Add(11 * time.Hour)},
		{StartTime: friday.Add(10*time.Hour + 30*time.Minute), EndTime: friday.Add(11*time.Hour + 30*time.Minute)},
	}

	free := SubtractBusy(grid, busy)

	// 10:00, 10:30 and 11:00 blocked; everything else stands.
	if len(free) != len(grid)-3 {
		t.Fatalf("free count = %d, want %d", len(free), len(grid)-3)
	}
	for _, s := range free {
		for _, b := range busy {
			if s.Overlaps(b) {
				t.Fatalf("slot %v overlaps busy interval %v", s.StartTime, b)
			}
		}
	}
}

func TestSubtractBusy_EmptyBusyReturnsFullGrid(t *testing.T) {
	grid := SlotGrid(friday, friday.AddDate(0, 0, 1), DefaultBusinessHours())
	free := SubtractBusy(grid, nil)

	if len(free) != len(grid) {
		t.Fatalf("free count = %d, want full grid %d", len(free), len(grid))
	}
}

func TestCredentialFreshAt(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	skew := 5 * time.Minute

	tests := []struct {
		name      string
		expiresAt time.Time
		want      bool
	}{
		{"well in the future", now.Add(time.Hour), true},
		{"inside the skew margin", now.Add(4 * time.Minute), false},
		{"exactly at the margin", now.Add(skew), false},
		{"just past the margin", now.Add(skew + time.Second), true},
		{"already expired", now.Add(-time.Second), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Credential{ExpiresAt: tt.expiresAt}
			if got := c.FreshAt(now, skew); got != tt.want {
				t.Fatalf("FreshAt = %v, want %v", got, tt.want)
			}
		})
	}
}

package domain

import "time"

// TimeSlot is a bookable interval. Slots are always exactly one configured
// slot length long; partial slots are never emitted.
type TimeSlot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

func (s TimeSlot) DurationMinutes() int {
	return int(s.EndTime.Sub(s.StartTime) / time.Minute)
}

// Overlaps reports whether the slot overlaps the busy interval. Touching
// boundaries do not overlap: a slot ending exactly when an interval begins
// stays bookable.
func (s TimeSlot) Overlaps(b BusyInterval) bool {
	return s.StartTime.Before(b.EndTime) && s.EndTime.After(b.StartTime)
}

// BusyInterval is a time range the calendar provider reports as occupied.
// Intervals may overlap each other; slot filtering treats them as a union.
type BusyInterval struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// BusinessHours describes the bookable portion of a day. Hours are whole
// clock hours in UTC so the slot grid stays aligned to the hour and half-hour
// rather than to "now".
type BusinessHours struct {
	StartHour  int
	EndHour    int
	SlotLength time.Duration
	ClosedDays []time.Weekday
}

func DefaultBusinessHours() BusinessHours {
	return BusinessHours{
		StartHour:  9,
		EndHour:    17,
		SlotLength: 30 * time.Minute,
		ClosedDays: []time.Weekday{time.Saturday, time.Sunday},
	}
}

func (h BusinessHours) IsZero() bool {
	return h.StartHour == 0 && h.EndHour == 0 && h.SlotLength == 0 && len(h.ClosedDays) == 0
}

func (h BusinessHours) closed(d time.Weekday) bool {
	for _, c := range h.ClosedDays {
		if c == d {
			return true
		}
	}
	return false
}

// SlotGrid generates every candidate slot between windowStart and windowEnd:
// one slot per SlotLength boundary between StartHour and EndHour on each open
// day. Slots starting before windowStart or ending after windowEnd are
// dropped, which handles a partially elapsed first day.
func SlotGrid(windowStart, windowEnd time.Time, hours BusinessHours) []TimeSlot {
	if hours.SlotLength <= 0 || hours.EndHour <= hours.StartHour {
		return nil
	}

	windowStart = windowStart.UTC()
	windowEnd = windowEnd.UTC()

	var out []TimeSlot
	day := time.Date(windowStart.Year(), windowStart.Month(), windowStart.Day(), 0, 0, 0, 0, time.UTC)
	for !day.After(windowEnd) {
		if hours.closed(day.Weekday()) {
			day = day.AddDate(0, 0, 1)
			continue
		}

		dayEnd := day.Add(time.Duration(hours.EndHour) * time.Hour)
		for start := day.Add(time.Duration(hours.StartHour) * time.Hour); ; start = start.Add(hours.SlotLength) {
			end := start.Add(hours.SlotLength)
			if end.After(dayEnd) {
				break
			}
			if start.Before(windowStart) || end.After(windowEnd) {
				continue
			}
			out = append(out, TimeSlot{StartTime: start, EndTime: end})
		}

		day = day.AddDate(0, 0, 1)
	}
	return out
}

// SubtractBusy returns the slots that overlap no busy interval, preserving
// order. An empty busy list returns the full grid: a wide-open calendar is a
// legitimate result, not an error.
func SubtractBusy(slots []TimeSlot, busy []BusyInterval) []TimeSlot {
	out := make([]TimeSlot, 0, len(slots))
	for _, s := range slots {
		blocked := false
		for _, b := range busy {
			if s.Overlaps(b) {
				blocked = true
				break
			}
		}
		if !blocked {
			out = append(out, s)
		}
	}
	return out
}

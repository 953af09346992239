package msgraph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"showings/internal/domain"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{BaseURL: baseURL, Timeout: 2 * time.Second})
}

func TestBusyIntervals(t *testing.T) {
	var gotPath, gotAuth, gotStart, gotEnd string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotStart = r.URL.Query().Get("startDateTime")
		gotEnd = r.URL.Query().Get("endDateTime")

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[
			{"id":"ev1","start":{"dateTime":"2026-01-05T10:00:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2026-01-05T10:30:00.0000000","timeZone":"UTC"}},
			{"id":"ev2","isCancelled":true,"start":{"dateTime":"2026-01-05T11:00:00.0000000","timeZone":"UTC"},"end":{"dateTime":"2026-01-05T12:00:00.0000000","timeZone":"UTC"}},
			{"id":"ev3","start":{"dateTime":"2026-01-05T14:00:00Z","timeZone":"UTC"},"end":{"dateTime":"2026-01-05T15:00:00Z","timeZone":"UTC"}}
		]}`))
	}))
	defer srv.Close()

	windowStart := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	windowEnd := windowStart.AddDate(0, 0, 7)

	busy, err := newTestClient(srv.URL).BusyIntervals(context.Background(), "tok", windowStart, windowEnd)
	if err != nil {
		t.Fatalf("BusyIntervals error: %v", err)
	}

	if gotPath != "/me/calendarView" {
		t.Fatalf("path = %q, want /me/calendarView", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("authorization = %q, want bearer token", gotAuth)
	}
	if gotStart != windowStart.Format(time.RFC3339) || gotEnd != windowEnd.Format(time.RFC3339) {
		t.Fatalf("window = [%s, %s], want [%s, %s]", gotStart, gotEnd, windowStart.Format(time.RFC3339), windowEnd.Format(time.RFC3339))
	}

	// Cancelled events are not obstructions.
	if len(busy) != 2 {
		t.Fatalf("busy count = %d, want 2", len(busy))
	}
	if !busy[0].StartTime.Equal(time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("busy[0] start = %v, want 10:00 UTC", busy[0].StartTime)
	}
	if !busy[1].EndTime.Equal(time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC)) {
		t.Fatalf("busy[1] end = %v, want 15:00 UTC", busy[1].EndTime)
	}
}

func TestBusyIntervals_EmptyCalendar(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	busy, err := newTestClient(srv.URL).BusyIntervals(context.Background(), "tok", time.Now(), time.Now().Add(24*time.Hour))
	if err != nil {
		t.Fatalf("an empty calendar is not an error, got: %v", err)
	}
	if len(busy) != 0 {
		t.Fatalf("busy count = %d, want 0", len(busy))
	}
}

func TestBusyIntervals_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).BusyIntervals(context.Background(), "tok", time.Now(), time.Now().Add(time.Hour))
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("error = %v, want ErrProviderUnavailable", err)
	}
}

func TestCreateEvent(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/me/events" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &gotBody); err != nil {
			t.Fatalf("unmarshal request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"AAMkAGI2TG93AAA="}`))
	}))
	defer srv.Close()

	start := time.Date(2026, 1, 5, 10, 30, 0, 0, time.UTC)
	id, err := newTestClient(srv.URL).CreateEvent(context.Background(), "tok", Event{
		Subject:       "Property Showing: 123 Main St",
		Body:          "Showing for Jane Doe",
		StartTime:     start,
		EndTime:       start.Add(30 * time.Minute),
		AttendeeName:  "Jane Doe",
		AttendeeEmail: "jane@example.com",
	})
	if err != nil {
		t.Fatalf("CreateEvent error: %v", err)
	}
	if id != "AAMkAGI2TG93AAA=" {
		t.Fatalf("event id = %q, want provider id", id)
	}

	if gotBody["subject"] != "Property Showing: 123 Main St" {
		t.Fatalf("subject = %v", gotBody["subject"])
	}
	startField, _ := gotBody["start"].(map[string]any)
	if startField["dateTime"] != "2026-01-05T10:30:00" || startField["timeZone"] != "UTC" {
		t.Fatalf("start = %v, want UTC wall time", startField)
	}
	attendees, _ := gotBody["attendees"].([]any)
	if len(attendees) != 1 {
		t.Fatalf("attendees = %v, want one required attendee", gotBody["attendees"])
	}
}

func TestCreateEvent_NoAttendeeEmailOmitsAttendees(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ev"}`))
	}))
	defer srv.Close()

	start := time.Now().UTC()
	if _, err := newTestClient(srv.URL).CreateEvent(context.Background(), "tok", Event{
		Subject:      "Property Showing: 123 Main St",
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		AttendeeName: "Walk-in",
	}); err != nil {
		t.Fatalf("CreateEvent error: %v", err)
	}

	if _, ok := gotBody["attendees"]; ok {
		t.Fatalf("attendees should be omitted without an email")
	}
}

func TestCreateEvent_Conflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	start := time.Now().UTC()
	_, err := newTestClient(srv.URL).CreateEvent(context.Background(), "tok", Event{
		Subject:      "s",
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		AttendeeName: "a",
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("error = %v, want ErrConflict", err)
	}
}

func TestCreateEvent_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	start := time.Now().UTC()
	_, err := newTestClient(srv.URL).CreateEvent(context.Background(), "tok", Event{
		Subject:      "s",
		StartTime:    start,
		EndTime:      start.Add(30 * time.Minute),
		AttendeeName: "a",
	})
	if !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("error = %v, want ErrProviderUnavailable", err)
	}
}

func TestParseGraphTime(t *testing.T) {
	tests := []struct {
		name string
		in   graphDateTime
		want time.Time
	}{
		{
			name: "zoneless fractional UTC",
			in:   graphDateTime{DateTime: "2026-01-05T10:00:00.0000000", TimeZone: "UTC"},
			want: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "rfc3339",
			in:   graphDateTime{DateTime: "2026-01-05T10:00:00Z"},
			want: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC),
		},
		{
			name: "named zone",
			in:   graphDateTime{DateTime: "2026-01-05T10:00:00.0000000", TimeZone: "America/New_York"},
			want: time.Date(2026, 1, 5, 15, 0, 0, 0, time.UTC),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGraphTime(tt.in)
			if err != nil {
				t.Fatalf("parseGraphTime error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("parsed = %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := parseGraphTime(graphDateTime{DateTime: "not a time"}); err == nil {
		t.Fatalf("expected error for malformed time")
	}
}

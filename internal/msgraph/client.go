// Package msgraph talks to the Microsoft Graph calendar API: reading busy
// intervals and creating events on behalf of an authorized user.
package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"showings/internal/domain"
)

const (
	defaultBaseURL = "https://graph.microsoft.com/v1.0"
	defaultTimeout = 15 * time.Second

	// calendarView is paged; one showing calendar never carries this many
	// events in a week-scale window.
	maxEventsPerWindow = 250
)

type Config struct {
	// BaseURL overrides the Graph endpoint. Used by tests.
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg Config) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Event is the payload for a calendar event to create.
type Event struct {
	Subject       string
	Body          string
	StartTime     time.Time
	EndTime       time.Time
	AttendeeName  string
	AttendeeEmail string
}

type graphEvent struct {
	ID          string        `json:"id"`
	IsCancelled bool          `json:"isCancelled"`
	Start       graphDateTime `json:"start"`
	End         graphDateTime `json:"end"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

// BusyIntervals fetches the occupied ranges in [windowStart, windowEnd).
// Every non-cancelled event counts as an obstruction; the slot engine handles
// overlap between intervals itself.
func (c *Client) BusyIntervals(ctx context.Context, accessToken string, windowStart, windowEnd time.Time) ([]domain.BusyInterval, error) {
	q := url.Values{}
	q.Set("startDateTime", windowStart.UTC().Format(time.RFC3339))
	q.Set("endDateTime", windowEnd.UTC().Format(time.RFC3339))
	q.Set("$orderby", "start/dateTime")
	q.Set("$top", fmt.Sprint(maxEventsPerWindow))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/me/calendarView?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: calendarView: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, providerError("calendarView", resp)
	}

	var payload struct {
		Value []graphEvent `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: calendarView decode: %v", domain.ErrProviderUnavailable, err)
	}

	out := make([]domain.BusyInterval, 0, len(payload.Value))
	for _, ev := range payload.Value {
		if ev.IsCancelled {
			continue
		}
		start, err := parseGraphTime(ev.Start)
		if err != nil {
			return nil, fmt.Errorf("%w: calendarView event %s: %v", domain.ErrProviderUnavailable, ev.ID, err)
		}
		end, err := parseGraphTime(ev.End)
		if err != nil {
			return nil, fmt.Errorf("%w: calendarView event %s: %v", domain.ErrProviderUnavailable, ev.ID, err)
		}
		out = append(out, domain.BusyInterval{StartTime: start, EndTime: end})
	}
	return out, nil
}

// CreateEvent creates a calendar event and returns the provider-assigned
// event id. A 409 from the provider maps to domain.ErrConflict.
func (c *Client) CreateEvent(ctx context.Context, accessToken string, ev Event) (string, error) {
	body := map[string]any{
		"subject": ev.Subject,
		"body": map[string]any{
			"contentType": "text",
			"content":     ev.Body,
		},
		"start": map[string]any{
			"dateTime": ev.StartTime.UTC().Format("2006-01-02T15:04:05"),
			"timeZone": "UTC",
		},
		"end": map[string]any{
			"dateTime": ev.EndTime.UTC().Format("2006-01-02T15:04:05"),
			"timeZone": "UTC",
		},
	}
	if ev.AttendeeEmail != "" {
		body["attendees"] = []map[string]any{{
			"emailAddress": map[string]any{
				"address": ev.AttendeeEmail,
				"name":    ev.AttendeeName,
			},
			"type": "required",
		}}
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/me/events", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	c.setHeaders(req, accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: create event: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return "", domain.ErrConflict
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", providerError("create event", resp)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return "", fmt.Errorf("%w: create event decode: %v", domain.ErrProviderUnavailable, err)
	}
	if created.ID == "" {
		return "", fmt.Errorf("%w: create event: response missing id", domain.ErrProviderUnavailable)
	}
	return created.ID, nil
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Prefer", `outlook.timezone="UTC"`)
}

func providerError(op string, resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%w: %s: status %d: %s", domain.ErrProviderUnavailable, op, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// parseGraphTime handles both shapes Graph emits: RFC3339 with zone, and the
// zoneless fractional form used when a Prefer timezone header is honored.
func parseGraphTime(dt graphDateTime) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, dt.DateTime); err == nil {
		return t.UTC(), nil
	}

	t, err := time.Parse("2006-01-02T15:04:05.999999999", dt.DateTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %v", dt.DateTime, err)
	}
	if dt.TimeZone != "" && !strings.EqualFold(dt.TimeZone, "UTC") {
		loc, locErr := time.LoadLocation(dt.TimeZone)
		if locErr != nil {
			return time.Time{}, fmt.Errorf("parse time zone %q: %v", dt.TimeZone, locErr)
		}
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
	}
	return t.UTC(), nil
}

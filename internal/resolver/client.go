// Package resolver provides HTTP clients for the event and calendar
// services. The notification core only needs titles, the calendar owner
// address and the preferred delivery channel.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// ErrNotFound is returned when the upstream service reports 404 for the
// requested resource.
var ErrNotFound = errors.New("resource not found")

// Event holds the event fields needed to compose a notification.
type Event struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Calendar holds the calendar fields needed to address a notification.
type Calendar struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	OwnerEmail          string `json:"authorEmail"`
	NotificationChannel string `json:"notificationChannel"`
}

// Config holds resolver client configuration.
type Config struct {
	EventServiceURL    string
	CalendarServiceURL string
	RequestTimeout     time.Duration
}

// Client resolves events and calendars over HTTP.
type Client struct {
	eventBaseURL    string
	calendarBaseURL string
	httpClient      *http.Client
}

// NewClient creates a new resolver client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.EventServiceURL == "" {
		return nil, errors.New("resolver: event service URL is required")
	}
	if cfg.CalendarServiceURL == "" {
		return nil, errors.New("resolver: calendar service URL is required")
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultTimeout
	}

	return &Client{
		eventBaseURL:    strings.TrimRight(cfg.EventServiceURL, "/"),
		calendarBaseURL: strings.TrimRight(cfg.CalendarServiceURL, "/"),
		httpClient:      &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// GetEvent fetches an event by id from the event service.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	var event Event
	url := fmt.Sprintf("%s/api/events/%s", c.eventBaseURL, eventID)
	if err := c.getJSON(ctx, url, &event); err != nil {
		return nil, fmt.Errorf("get event %s: %w", eventID, err)
	}
	return &event, nil
}

// GetCalendar fetches a calendar by id from the calendar service.
func (c *Client) GetCalendar(ctx context.Context, calendarID string) (*Calendar, error) {
	var calendar Calendar
	url := fmt.Sprintf("%s/api/calendars/%s", c.calendarBaseURL, calendarID)
	if err := c.getJSON(ctx, url, &calendar); err != nil {
		return nil, fmt.Errorf("get calendar %s: %w", calendarID, err)
	}
	return &calendar, nil
}

func (c *Client) getJSON(ctx context.Context, url string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

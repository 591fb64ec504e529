//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// upstreamStub fakes the event and calendar services the resolver calls.
type upstreamStub struct {
	mu        sync.Mutex
	events    map[string]map[string]string
	calendars map[string]map[string]string

	eventServer    *httptest.Server
	calendarServer *httptest.Server
}

func newUpstreamStub() *upstreamStub {
	s := &upstreamStub{
		events:    make(map[string]map[string]string),
		calendars: make(map[string]map[string]string),
	}

	eventRouter := chi.NewRouter()
	eventRouter.Get("/api/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, s.events, chi.URLParam(r, "id"))
	})
	s.eventServer = httptest.NewServer(eventRouter)

	calendarRouter := chi.NewRouter()
	calendarRouter.Get("/api/calendars/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.serve(w, s.calendars, chi.URLParam(r, "id"))
	})
	s.calendarServer = httptest.NewServer(calendarRouter)

	return s
}

func (s *upstreamStub) serve(w http.ResponseWriter, store map[string]map[string]string, id string) {
	s.mu.Lock()
	resource, ok := store[id]
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not found"})
		return
	}
	_ = json.NewEncoder(w).Encode(resource)
}

func (s *upstreamStub) EventServiceURL() string    { return s.eventServer.URL }
func (s *upstreamStub) CalendarServiceURL() string { return s.calendarServer.URL }

func (s *upstreamStub) Close() {
	s.eventServer.Close()
	s.calendarServer.Close()
}

// AddEvent registers an event the stub will serve.
func (s *upstreamStub) AddEvent(id, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[id] = map[string]string{"id": id, "title": title}
}

// AddCalendar registers a calendar. Channel may be empty for the default.
func (s *upstreamStub) AddCalendar(id, title, authorEmail, channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	calendar := map[string]string{
		"id":          id,
		"title":       title,
		"authorEmail": authorEmail,
	}
	if channel != "" {
		calendar["notificationChannel"] = channel
	}
	s.calendars[id] = calendar
}

// SentEmail represents an email captured by the mock sender.
type SentEmail struct {
	To      string
	Subject string
	Body    string
	SentAt  time.Time
}

// MockSender is a test implementation of notifications.Sender.
type MockSender struct {
	mu        sync.Mutex
	sent      []SentEmail
	failErr   error
	failCount int // Number of times to fail before succeeding
	callCount int
}

// NewMockSender creates a new mock sender.
func NewMockSender() *MockSender {
	return &MockSender{sent: make([]SentEmail, 0)}
}

// Send implements notifications.Sender.
func (m *MockSender) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++

	if m.failCount > 0 {
		m.failCount--
		return m.failErr
	}

	m.sent = append(m.sent, SentEmail{
		To:      to,
		Subject: subject,
		Body:    body,
		SentAt:  time.Now(),
	})

	return nil
}

// GetSent returns a copy of sent emails.
func (m *MockSender) GetSent() []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]SentEmail, len(m.sent))
	copy(result, m.sent)
	return result
}

// SentCount returns the number of sent emails.
func (m *MockSender) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// CallCount returns the total number of Send calls.
func (m *MockSender) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// FailNextN makes the next N Send calls fail with the given error.
func (m *MockSender) FailNextN(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failCount = n
	m.failErr = err
}

// SentTo returns sent emails addressed to the given recipient.
func (m *MockSender) SentTo(recipient string) []SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]SentEmail, 0)
	for _, email := range m.sent {
		if strings.EqualFold(email.To, recipient) {
			result = append(result, email)
		}
	}
	return result
}

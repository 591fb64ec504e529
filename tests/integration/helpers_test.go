//go:build integration

package integration

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/evercal/notify-service/internal/testutil"
)

// notificationJSON mirrors the API wire format of a notification.
type notificationJSON struct {
	ID             string     `json:"id"`
	EventID        string     `json:"eventId"`
	CalendarID     string     `json:"calendarId"`
	Channel        string     `json:"channel"`
	RecipientEmail string     `json:"recipientEmail"`
	Message        string     `json:"message"`
	Read           bool       `json:"read"`
	Status         string     `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"lastError"`
	NextAttemptAt  *time.Time `json:"nextAttemptAt"`
	ProcessedAt    *time.Time `json:"processedAt"`
}

type notificationResponse struct {
	Data notificationJSON `json:"data"`
}

type notificationListResponse struct {
	Data []notificationJSON `json:"data"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// newFixture registers a fresh event and calendar with the upstream stub
// and returns their ids. Each test gets unique ids so tests can filter by
// them and run against shared state.
func newFixture(t *testing.T, ownerEmail, channel string) (eventID, calendarID string) {
	t.Helper()

	eventID = "event-" + uuid.NewString()
	calendarID = "calendar-" + uuid.NewString()
	upstream.AddEvent(eventID, "Sprint Planning")
	upstream.AddCalendar(calendarID, "Engineering", ownerEmail, channel)
	return eventID, calendarID
}

// createNotification creates a notification through the API and returns it.
func createNotification(t *testing.T, client *testutil.Client, eventID, calendarID, commenter string) notificationJSON {
	t.Helper()

	resp, err := client.POST("/api/notifications", map[string]string{
		"eventId":       eventID,
		"calendarId":    calendarID,
		"commenterName": commenter,
	})
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result notificationResponse
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// notificationRow is the database view of a notification used by dispatch
// tests to assert on scheduler writes directly.
type notificationRow struct {
	Status        string
	Attempts      int
	LastError     string
	NextAttemptAt *time.Time
	LastAttemptAt *time.Time
	ProcessedAt   *time.Time
	UpdatedAt     time.Time
}

func getNotificationRow(t *testing.T, id string) notificationRow {
	t.Helper()

	var row notificationRow
	err := testDB.QueryRow(context.Background(), `
		SELECT status, attempts, last_error, next_attempt_at, last_attempt_at, processed_at, updated_at
		FROM notifications WHERE id = $1
	`, id).Scan(&row.Status, &row.Attempts, &row.LastError, &row.NextAttemptAt, &row.LastAttemptAt, &row.ProcessedAt, &row.UpdatedAt)
	require.NoError(t, err)
	return row
}

// drainQueue parks every pending email notification so scheduler tests
// start from an empty dispatch queue. Earlier API tests leave pending
// records behind; without this they would soak up mock-sender failures.
func drainQueue(t *testing.T) {
	t.Helper()

	_, err := testDB.Exec(context.Background(), `
		UPDATE notifications
		SET status = 'sent', next_attempt_at = NULL
		WHERE channel = 'email' AND status = 'pending'
	`)
	require.NoError(t, err)
}

// forceDue rewinds next_attempt_at so the next cycle picks the record up.
func forceDue(t *testing.T, id string) {
	t.Helper()

	_, err := testDB.Exec(context.Background(), `
		UPDATE notifications SET next_attempt_at = NOW() - INTERVAL '1 second' WHERE id = $1
	`, id)
	require.NoError(t, err)
}

//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	notificationspostgres "github.com/evercal/notify-service/internal/notifications/postgres"
)

func TestQueueStats(t *testing.T) {
	repo := notificationspostgres.NewRepository(testDB)
	before, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)

	client := newTestClient(t)
	eventID, calendarID := newFixture(t, "stats@example.com", "")
	createNotification(t, client, eventID, calendarID, "Ana")
	createNotification(t, client, eventID, calendarID, "Bob")

	after, err := repo.CountByStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, before.Pending+2, after.Pending)
	assert.Equal(t, before.Sent, after.Sent)
	assert.Equal(t, before.Error, after.Error)
}

func TestRetentionCleanup(t *testing.T) {
	drainQueue(t)

	client := newTestClient(t)
	eventID, calendarID := newFixture(t, "retention@example.com", "")
	oldSent := createNotification(t, client, eventID, calendarID, "Ana")
	oldError := createNotification(t, client, eventID, calendarID, "Bob")
	freshPending := createNotification(t, client, eventID, calendarID, "Carol")

	ctx := context.Background()

	// Age two of them into terminal states updated 60 days ago.
	age := func(id, status string) {
		_, err := testDB.Exec(ctx, `
			UPDATE notifications
			SET status = $2, next_attempt_at = NULL, updated_at = NOW() - INTERVAL '60 days'
			WHERE id = $1
		`, id, status)
		require.NoError(t, err)
	}
	age(oldSent.ID, "sent")
	age(oldError.ID, "error")

	repo := notificationspostgres.NewRepository(testDB)
	deleted, err := repo.DeleteOldTerminal(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deleted, int64(2))

	// The terminal records are gone, the pending one survives.
	var count int
	err = testDB.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE id = ANY($1::uuid[])
	`, []string{oldSent.ID, oldError.ID}).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	row := getNotificationRow(t, freshPending.ID)
	assert.Equal(t, "pending", row.Status)
}

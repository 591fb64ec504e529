//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evercal/notify-service/internal/notifications"
	"github.com/evercal/notify-service/internal/notifications/email"
	notificationspostgres "github.com/evercal/notify-service/internal/notifications/postgres"
)

// TestEmailDelivery_E2E sends a real email through the SMTP adapter into
// Mailpit and checks what arrived.
func TestEmailDelivery_E2E(t *testing.T) {
	drainQueue(t)
	require.NoError(t, mailpitClient.DeleteAllMessages())

	client := newTestClient(t)
	eventID, calendarID := newFixture(t, "e2e-recipient@example.com", "")
	notification := createNotification(t, client, eventID, calendarID, "Ana")

	sender, err := email.NewSender(email.Config{
		Enabled:     true,
		SMTPHost:    mailpitContainer.SMTPHost,
		SMTPPort:    mailpitContainer.SMTPPort,
		FromAddress: "EverCal <noreply@evercal.test>",
	})
	require.NoError(t, err)

	config := notifications.DefaultSchedulerConfig()
	config.Interval = time.Hour
	repo := notificationspostgres.NewRepository(testDB)
	scheduler := notifications.NewScheduler(config, repo, sender)

	scheduler.RunCycle(context.Background())

	row := getNotificationRow(t, notification.ID)
	require.Equal(t, "sent", row.Status)

	// Mailpit should have received exactly one message.
	var messages []MailpitMessage
	require.Eventually(t, func() bool {
		var err error
		messages, err = mailpitClient.GetMessages()
		return err == nil && len(messages) == 1
	}, 10*time.Second, 200*time.Millisecond)

	msg := messages[0]
	assert.Equal(t, "New comment on your event", msg.Subject)

	recipients := msg.AllRecipients()
	require.Len(t, recipients, 1)
	assert.Equal(t, "e2e-recipient@example.com", recipients[0].Address)

	full, err := mailpitClient.GetMessageByID(msg.ID)
	require.NoError(t, err)
	assert.Contains(t, full.Text, `Ana commented on "Sprint Planning" in "Engineering"`)
}

// TestEmailDelivery_E2E_UnreachableSMTP verifies a real connection failure
// is handled as a retryable error.
func TestEmailDelivery_E2E_UnreachableSMTP(t *testing.T) {
	drainQueue(t)

	client := newTestClient(t)
	eventID, calendarID := newFixture(t, "e2e-unreachable@example.com", "")
	notification := createNotification(t, client, eventID, calendarID, "Ana")

	sender, err := email.NewSender(email.Config{
		Enabled:     true,
		SMTPHost:    "127.0.0.1",
		SMTPPort:    1, // nothing listens here
		FromAddress: "noreply@evercal.test",
		DialTimeout: time.Second,
	})
	require.NoError(t, err)

	config := notifications.DefaultSchedulerConfig()
	config.Interval = time.Hour
	repo := notificationspostgres.NewRepository(testDB)
	scheduler := notifications.NewScheduler(config, repo, sender)

	scheduler.RunCycle(context.Background())

	row := getNotificationRow(t, notification.ID)
	assert.Equal(t, "pending", row.Status)
	assert.Equal(t, 1, row.Attempts)
	assert.NotEmpty(t, row.LastError)
	require.NotNil(t, row.NextAttemptAt)
	assert.True(t, row.NextAttemptAt.After(time.Now()))
}

// Package postgres provides PostgreSQL implementation of the notifications repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evercal/notify-service/internal/domain"
	"github.com/evercal/notify-service/internal/notifications"
)

const notificationColumns = `id, event_id, calendar_id, channel, recipient_email, message,
	read, status, attempts, last_error, next_attempt_at, last_attempt_at, processed_at,
	created_at, updated_at`

// Repository implements notifications.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Insert persists a newly created notification.
func (r *Repository) Insert(ctx context.Context, n *domain.Notification) error {
	query := `
		INSERT INTO notifications (id, event_id, calendar_id, channel, recipient_email, message, status, next_attempt_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRow(ctx, query,
		n.ID,
		n.EventID,
		n.CalendarID,
		n.Channel,
		n.RecipientEmail,
		n.Message,
		n.Status,
		n.NextAttemptAt,
	).Scan(&n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetByID retrieves a notification by ID.
func (r *Repository) GetByID(ctx context.Context, id string) (*domain.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`

	n, err := scanNotification(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	return n, nil
}

// FetchDue selects email notifications due for a delivery attempt, oldest
// due first. In-app notifications never match: they carry no delivery
// schedule.
func (r *Repository) FetchDue(ctx context.Context, now time.Time, limit, maxAttempts int) ([]*domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE channel = 'email'
		  AND status = 'pending'
		  AND attempts < $1
		  AND next_attempt_at IS NOT NULL
		  AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC, updated_at ASC
		LIMIT $3
	`
	rows, err := r.db.Query(ctx, query, maxAttempts, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due notifications: %w", err)
	}
	defer rows.Close()

	due := make([]*domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		due = append(due, n)
	}
	return due, rows.Err()
}

// MarkSent records a successful delivery attempt.
func (r *Repository) MarkSent(ctx context.Context, id string, attemptedAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = 'sent', attempts = attempts + 1, last_attempt_at = $2,
		    processed_at = $2, next_attempt_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, attemptedAt)
	if err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}
	return nil
}

// MarkRetry records a failed delivery attempt and schedules the next one.
func (r *Repository) MarkRetry(ctx context.Context, id string, attemptedAt time.Time, sendErr error, nextAttemptAt time.Time) error {
	query := `
		UPDATE notifications
		SET attempts = attempts + 1, last_error = $2, last_attempt_at = $3,
		    next_attempt_at = $4, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, errorText(sendErr), attemptedAt, nextAttemptAt)
	if err != nil {
		return fmt.Errorf("mark retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}
	return nil
}

// MarkFailed records a failed delivery attempt and parks the notification
// in the terminal error state.
func (r *Repository) MarkFailed(ctx context.Context, id string, attemptedAt time.Time, sendErr error) error {
	query := `
		UPDATE notifications
		SET status = 'error', attempts = attempts + 1, last_error = $2,
		    last_attempt_at = $3, next_attempt_at = NULL, updated_at = NOW()
		WHERE id = $1
	`
	result, err := r.db.Exec(ctx, query, id, errorText(sendErr), attemptedAt)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return notifications.ErrNotificationNotFound
	}
	return nil
}

// MarkRead sets the read flag and returns the updated notification.
// Marking an already read notification is a no-op that still succeeds.
func (r *Repository) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	query := `
		UPDATE notifications
		SET read = true, updated_at = CASE WHEN read THEN updated_at ELSE NOW() END
		WHERE id = $1
		RETURNING ` + notificationColumns

	n, err := scanNotification(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notifications.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return n, nil
}

// ListUnreadInApp returns unread in-app notifications for a recipient,
// newest first.
func (r *Repository) ListUnreadInApp(ctx context.Context, recipientEmail string) ([]domain.Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE channel = 'in-app' AND recipient_email = $1 AND read = false
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, recipientEmail)
	if err != nil {
		return nil, fmt.Errorf("list unread in-app notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// List returns notifications matching the filter, newest-created first.
func (r *Repository) List(ctx context.Context, filter notifications.Filter) ([]domain.Notification, error) {
	conditions := make([]string, 0)
	args := make([]any, 0)

	addCondition := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if filter.EventID != "" {
		addCondition("event_id", filter.EventID)
	}
	if filter.CalendarID != "" {
		addCondition("calendar_id", filter.CalendarID)
	}
	if filter.RecipientEmail != "" {
		addCondition("recipient_email", filter.RecipientEmail)
	}
	if filter.Channel != "" {
		addCondition("channel", filter.Channel)
	}
	if filter.Status != "" {
		addCondition("status", filter.Status)
	}
	if filter.Unread != nil {
		addCondition("read", !*filter.Unread)
	}

	query := `SELECT ` + notificationColumns + ` FROM notifications`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// CountByStatus returns the number of notifications per dispatch status.
func (r *Repository) CountByStatus(ctx context.Context) (*notifications.QueueStats, error) {
	query := `SELECT status, COUNT(*) FROM notifications GROUP BY status`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count by status: %w", err)
	}
	defer rows.Close()

	var stats notifications.QueueStats
	for rows.Next() {
		var status domain.Status
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		switch status {
		case domain.StatusPending:
			stats.Pending = count
		case domain.StatusSent:
			stats.Sent = count
		case domain.StatusError:
			stats.Error = count
		}
	}
	return &stats, rows.Err()
}

// DeleteOldTerminal removes sent/error notifications older than maxAge and
// returns the count.
func (r *Repository) DeleteOldTerminal(ctx context.Context, maxAge time.Duration) (int64, error) {
	query := `
		DELETE FROM notifications
		WHERE status IN ('sent', 'error') AND updated_at < $1
	`
	result, err := r.db.Exec(ctx, query, time.Now().Add(-maxAge))
	if err != nil {
		return 0, fmt.Errorf("delete old notifications: %w", err)
	}
	return result.RowsAffected(), nil
}

func scanNotification(row pgx.Row) (*domain.Notification, error) {
	var n domain.Notification
	err := row.Scan(
		&n.ID,
		&n.EventID,
		&n.CalendarID,
		&n.Channel,
		&n.RecipientEmail,
		&n.Message,
		&n.Read,
		&n.Status,
		&n.Attempts,
		&n.LastError,
		&n.NextAttemptAt,
		&n.LastAttemptAt,
		&n.ProcessedAt,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func collectNotifications(rows pgx.Rows) ([]domain.Notification, error) {
	result := make([]domain.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, *n)
	}
	return result, rows.Err()
}

// errorText truncates the stored failure reason to keep rows bounded.
func errorText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > 1000 {
		msg = msg[:1000]
	}
	return msg
}

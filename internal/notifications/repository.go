// Package notifications implements the comment-notification core: creation,
// storage access, dispatch scheduling and the read API.
package notifications

import (
	"context"
	"time"

	"github.com/evercal/notify-service/internal/domain"
)

// Repository defines the interface for notification data access.
type Repository interface {
	// Insert persists a newly created notification.
	Insert(ctx context.Context, n *domain.Notification) error

	// GetByID retrieves a notification by id.
	GetByID(ctx context.Context, id string) (*domain.Notification, error)

	// FetchDue selects up to limit email notifications that are due for a
	// delivery attempt: status pending, attempts below maxAttempts and
	// next_attempt_at at or before now. Results are ordered oldest-due
	// first (next_attempt_at, then updated_at).
	FetchDue(ctx context.Context, now time.Time, limit, maxAttempts int) ([]*domain.Notification, error)

	// MarkSent records a successful delivery attempt made at attemptedAt.
	MarkSent(ctx context.Context, id string, attemptedAt time.Time) error

	// MarkRetry records a failed delivery attempt and schedules the next
	// one at nextAttemptAt.
	MarkRetry(ctx context.Context, id string, attemptedAt time.Time, sendErr error, nextAttemptAt time.Time) error

	// MarkFailed records a failed delivery attempt and parks the
	// notification in the terminal error state.
	MarkFailed(ctx context.Context, id string, attemptedAt time.Time, sendErr error) error

	// MarkRead idempotently sets the read flag and returns the updated
	// notification.
	MarkRead(ctx context.Context, id string) (*domain.Notification, error)

	// ListUnreadInApp returns unread in-app notifications for a recipient,
	// newest first.
	ListUnreadInApp(ctx context.Context, recipientEmail string) ([]domain.Notification, error)

	// List returns notifications matching the filter, newest-created first.
	List(ctx context.Context, filter Filter) ([]domain.Notification, error)

	// CountByStatus returns the number of notifications per dispatch status.
	CountByStatus(ctx context.Context) (*QueueStats, error)

	// DeleteOldTerminal removes sent/error notifications older than maxAge
	// and returns the count. Administrative cleanup, not part of dispatch.
	DeleteOldTerminal(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Filter narrows a List query. Zero-valued fields are ignored.
type Filter struct {
	EventID        string
	CalendarID     string
	RecipientEmail string
	Channel        domain.Channel
	Status         domain.Status
	Unread         *bool
	Limit          int
}

// QueueStats holds notification counts by dispatch status.
type QueueStats struct {
	Pending int64
	Sent    int64
	Error   int64
}

// Sender delivers a single message to a single recipient over one channel.
// Implementations may wrap errors with PermanentError to suppress retries.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

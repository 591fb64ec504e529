package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/evercal/notify-service/internal/domain"
	"github.com/evercal/notify-service/internal/resolver"
	"github.com/google/uuid"
)

// RelationshipResolver resolves event and calendar ids against the rest of
// the system. Implemented by resolver.Client.
type RelationshipResolver interface {
	GetEvent(ctx context.Context, eventID string) (*resolver.Event, error)
	GetCalendar(ctx context.Context, calendarID string) (*resolver.Calendar, error)
}

// CreateInput is a notification creation request.
type CreateInput struct {
	EventID       string
	CalendarID    string
	CommenterName string
}

// ComposeMessage builds the human-readable notification text. The exact
// format is a contract: other components parse and display it verbatim.
func ComposeMessage(commenterName, eventTitle, calendarTitle string) string {
	return fmt.Sprintf("%s commented on \"%s\" in \"%s\"", commenterName, eventTitle, calendarTitle)
}

// Service provides notification creation and the read API.
type Service struct {
	repo     Repository
	resolver RelationshipResolver
}

// NewService creates a new notifications service.
func NewService(repo Repository, rel RelationshipResolver) *Service {
	return &Service{
		repo:     repo,
		resolver: rel,
	}
}

// Create validates the request, resolves the event and calendar, composes
// the message and persists exactly one notification. Upstream failures are
// returned synchronously; nothing is queued for invalid requests.
func (s *Service) Create(ctx context.Context, input CreateInput) (*domain.Notification, error) {
	if input.EventID == "" {
		return nil, &ValidationError{Field: "eventId"}
	}
	if input.CalendarID == "" {
		return nil, &ValidationError{Field: "calendarId"}
	}
	if input.CommenterName == "" {
		return nil, &ValidationError{Field: "commenterName"}
	}

	event, err := s.resolver.GetEvent(ctx, input.EventID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEventNotFound, err)
	}

	calendar, err := s.resolver.GetCalendar(ctx, input.CalendarID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCalendarNotFound, err)
	}

	channel := domain.Channel(calendar.NotificationChannel)
	if !channel.IsValid() {
		if calendar.NotificationChannel != "" {
			slog.Warn("unknown notification channel, falling back to email",
				"calendar_id", input.CalendarID,
				"channel", calendar.NotificationChannel,
			)
		}
		channel = domain.ChannelEmail
	}

	notification := &domain.Notification{
		ID:             uuid.NewString(),
		EventID:        input.EventID,
		CalendarID:     input.CalendarID,
		Channel:        channel,
		RecipientEmail: calendar.OwnerEmail,
		Message:        ComposeMessage(input.CommenterName, event.Title, calendar.Title),
		Status:         domain.StatusPending,
	}

	if channel == domain.ChannelEmail {
		// Immediately due for the next dispatch cycle.
		now := time.Now()
		notification.NextAttemptAt = &now
	}

	if err := s.repo.Insert(ctx, notification); err != nil {
		return nil, fmt.Errorf("insert notification: %w", err)
	}

	slog.Info("notification created",
		"id", notification.ID,
		"event_id", notification.EventID,
		"calendar_id", notification.CalendarID,
		"channel", notification.Channel,
	)

	return notification, nil
}

// List returns notifications matching the filter, newest-created first.
func (s *Service) List(ctx context.Context, filter Filter) ([]domain.Notification, error) {
	return s.repo.List(ctx, filter)
}

// ListUnreadInApp returns unread in-app notifications for a recipient,
// newest first.
func (s *Service) ListUnreadInApp(ctx context.Context, recipientEmail string) ([]domain.Notification, error) {
	return s.repo.ListUnreadInApp(ctx, recipientEmail)
}

// MarkRead idempotently marks a notification as read. Marking an already
// read notification is not an error.
func (s *Service) MarkRead(ctx context.Context, id string) (*domain.Notification, error) {
	return s.repo.MarkRead(ctx, id)
}

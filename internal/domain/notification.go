// Package domain contains the core entities of the notification service.
package domain

import "time"

// Channel represents the delivery medium of a notification.
type Channel string

// Delivery channels.
const (
	ChannelEmail Channel = "email"
	ChannelInApp Channel = "in-app"
)

// IsValid reports whether the channel is a known delivery medium.
func (c Channel) IsValid() bool {
	return c == ChannelEmail || c == ChannelInApp
}

// Status represents the dispatch state of a notification.
type Status string

// Dispatch states. Sent and Error are terminal: no automatic transition
// leaves them.
const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusError   Status = "error"
)

// Notification is a single comment notification addressed to a calendar
// owner. Email notifications move through the pending/sent/error state
// machine driven by the dispatch scheduler; in-app notifications are
// delivered by being queryable and only ever mutate their Read flag.
type Notification struct {
	ID             string     `json:"id"`
	EventID        string     `json:"eventId"`
	CalendarID     string     `json:"calendarId"`
	Channel        Channel    `json:"channel"`
	RecipientEmail string     `json:"recipientEmail"`
	Message        string     `json:"message"`
	Read           bool       `json:"read"`
	Status         Status     `json:"status"`
	Attempts       int        `json:"attempts"`
	LastError      string     `json:"lastError,omitempty"`
	NextAttemptAt  *time.Time `json:"nextAttemptAt,omitempty"`
	LastAttemptAt  *time.Time `json:"lastAttemptAt,omitempty"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// IsTerminal reports whether the notification has reached a state the
// scheduler will never touch again.
func (n *Notification) IsTerminal() bool {
	return n.Status == StatusSent || n.Status == StatusError
}

package notifications

import (
	"errors"
	"fmt"
)

// Repository errors.
var (
	ErrNotificationNotFound = errors.New("notification not found")
)

// Upstream resolution errors. Creation fails synchronously with one of
// these when the event or calendar cannot be resolved; callers are
// expected to treat notification creation as best-effort.
var (
	ErrEventNotFound    = errors.New("event not found")
	ErrCalendarNotFound = errors.New("calendar not found")
)

// ValidationError reports a missing or empty field in a creation request.
// It is returned before anything is persisted.
type ValidationError struct {
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("field %q is required", e.Field)
}

// IsValidationError reports whether err is a ValidationError and returns it.
func IsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

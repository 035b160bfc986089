// Package alert turns readings into user-facing notifications and keeps the
// most recent ones in a bounded buffer.
package alert

import (
	"time"

	"github.com/google/uuid"
)

// Severity of a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification is one alert occurrence. Two occurrences of the same
// condition get distinct IDs.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
	Rule      string    `json:"rule,omitempty"` // evaluator rule that raised it, if any
}

// New stamps a notification with a fresh ID.
func New(sev Severity, msg string, at time.Time) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Message:   msg,
		Severity:  sev,
		CreatedAt: at,
	}
}

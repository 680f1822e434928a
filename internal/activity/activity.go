package activity

import (
	"errors"
	"fmt"
	"time"
)

// Status is the lifecycle state of an activity.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusOpen     Status = "open"
	StatusClosed   Status = "closed"
	StatusFinished Status = "finished"
)

// ValidStatus reports whether s is one of the defined lifecycle states.
// Any state may be set to any other; only membership is checked.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusOpen, StatusClosed, StatusFinished:
		return true
	}
	return false
}

// Activity is a scheduled library event with finite capacity.
type Activity struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Date        time.Time  `json:"date"`
	StartTime   string     `json:"start_time,omitempty"`
	DurationMin *int       `json:"duration_min,omitempty"`
	MaxSlots    int        `json:"max_slots"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// ErrNotFound is returned when an activity id resolves to nothing.
var ErrNotFound = errors.New("activity not found")

// ValidationError describes malformed or missing caller input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

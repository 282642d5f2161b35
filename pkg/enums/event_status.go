package enums

import "fmt"

// EventStatus tracks where an event (or one of its deliveries) sits in the dispatch lifecycle.
type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusCompleted  EventStatus = "completed"
	EventStatusFailed     EventStatus = "failed"
	EventStatusDeadLetter EventStatus = "dead_letter"
)

var validEventStatuses = []EventStatus{
	EventStatusPending,
	EventStatusProcessing,
	EventStatusCompleted,
	EventStatusFailed,
	EventStatusDeadLetter,
}

// String returns the literal string for the status.
func (s EventStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s EventStatus) IsValid() bool {
	for _, candidate := range validEventStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further dispatch happens from this status.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusCompleted || s == EventStatusDeadLetter
}

// ParseEventStatus converts raw input into an EventStatus.
func ParseEventStatus(value string) (EventStatus, error) {
	for _, candidate := range validEventStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event status %q", value)
}

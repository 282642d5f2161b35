package enums

import "fmt"

// EventPriority is recorded on every event. Dispatch does not reorder by priority.
type EventPriority string

const (
	EventPriorityLow      EventPriority = "low"
	EventPriorityNormal   EventPriority = "normal"
	EventPriorityHigh     EventPriority = "high"
	EventPriorityCritical EventPriority = "critical"
)

var validEventPriorities = []EventPriority{
	EventPriorityLow,
	EventPriorityNormal,
	EventPriorityHigh,
	EventPriorityCritical,
}

func (p EventPriority) String() string {
	return string(p)
}

// IsValid reports whether the priority is known.
func (p EventPriority) IsValid() bool {
	for _, candidate := range validEventPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseEventPriority converts raw input into an EventPriority. Empty input means normal.
func ParseEventPriority(value string) (EventPriority, error) {
	if value == "" {
		return EventPriorityNormal, nil
	}
	for _, candidate := range validEventPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event priority %q", value)
}

package events

import (
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
)

// Delivery tracks one handler's progress through the status state machine for an event.
type Delivery struct {
	Handler      string            `json:"handler"`
	Status       enums.EventStatus `json:"status"`
	RetryCount   int               `json:"retry_count"`
	ErrorMessage string            `json:"error_message,omitempty"`
	LastErrorAt  *time.Time        `json:"last_error_at,omitempty"`
	ProcessedAt  *time.Time        `json:"processed_at,omitempty"`
}

func (d *Delivery) MarkProcessing() {
	d.Status = enums.EventStatusProcessing
}

func (d *Delivery) MarkCompleted(at time.Time) {
	d.Status = enums.EventStatusCompleted
	d.ProcessedAt = &at
}

// MarkFailed records a handler failure. Reaching maxRetries moves the delivery to dead_letter.
func (d *Delivery) MarkFailed(err error, at time.Time, maxRetries int) {
	d.RetryCount++
	if err != nil {
		d.ErrorMessage = err.Error()
	}
	d.LastErrorAt = &at
	if d.RetryCount >= maxRetries {
		d.Status = enums.EventStatusDeadLetter
		return
	}
	d.Status = enums.EventStatusFailed
}

// Abandon dead-letters a failed delivery whose retry chain was interrupted before its budget
// ran out.
func (d *Delivery) Abandon(err error, at time.Time) {
	if err != nil {
		d.ErrorMessage = err.Error()
	}
	d.LastErrorAt = &at
	d.Status = enums.EventStatusDeadLetter
}

// IsRetryable reports whether the delivery failed with budget left.
func (d Delivery) IsRetryable(maxRetries int) bool {
	return d.Status == enums.EventStatusFailed && d.RetryCount < maxRetries
}

func (d Delivery) clone() Delivery {
	out := d
	out.LastErrorAt = cloneTime(d.LastErrorAt)
	out.ProcessedAt = cloneTime(d.ProcessedAt)
	return out
}

package events

import (
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
	"github.com/google/uuid"
)

// DefaultMaxRetries is applied when a publisher does not choose a retry budget.
const DefaultMaxRetries = 3

// Event is one occurrence of a domain fact flowing through the bus.
//
// Status, RetryCount, ErrorMessage, LastErrorAt and ProcessedAt are derived from
// Deliveries once dispatch begins; see Aggregate.
type Event struct {
	ID           string              `json:"event_id"`
	Type         string              `json:"event_type"`
	Payload      map[string]any      `json:"payload"`
	Metadata     Metadata            `json:"metadata"`
	Priority     enums.EventPriority `json:"priority"`
	Status       enums.EventStatus   `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	PublishedAt  *time.Time          `json:"published_at"`
	ProcessedAt  *time.Time          `json:"processed_at"`
	RetryCount   int                 `json:"retry_count"`
	MaxRetries   int                 `json:"max_retries"`
	ErrorMessage string              `json:"-"`
	LastErrorAt  *time.Time          `json:"last_error_at"`
	Deliveries   []Delivery          `json:"deliveries,omitempty"`
}

// New builds a pending event with a fresh id.
func New(eventType string, payload map[string]any, metadata Metadata, priority enums.EventPriority) *Event {
	if payload == nil {
		payload = map[string]any{}
	}
	if priority == "" {
		priority = enums.EventPriorityNormal
	}
	return &Event{
		ID:         uuid.NewString(),
		Type:       strings.TrimSpace(eventType),
		Payload:    payload,
		Metadata:   metadata,
		Priority:   priority,
		Status:     enums.EventStatusPending,
		CreatedAt:  Now(),
		MaxRetries: DefaultMaxRetries,
	}
}

// Now returns the current UTC time without a monotonic reading so timestamps
// compare equal after a wire round-trip.
func Now() time.Time {
	return time.Now().UTC().Round(0)
}

// Validate reports construction problems as an EVENT_VALIDATION_ERROR.
func (e *Event) Validate() error {
	if e == nil {
		return NewValidationError("event is required")
	}
	if strings.TrimSpace(e.ID) == "" {
		return NewValidationError("event_id is required")
	}
	if strings.TrimSpace(e.Type) == "" {
		return NewValidationError("event_type is required")
	}
	if IsPattern(e.Type) {
		return NewValidationError("event_type must not contain wildcard characters").
			WithDetails(map[string]any{"event_type": e.Type})
	}
	if !e.Priority.IsValid() {
		return NewValidationError("invalid priority").WithDetails(map[string]any{"priority": e.Priority})
	}
	if !e.Status.IsValid() {
		return NewValidationError("invalid status").WithDetails(map[string]any{"status": e.Status})
	}
	if e.MaxRetries < 0 {
		return NewValidationError("max_retries must not be negative")
	}
	return nil
}

// IsPattern reports whether an event type carries glob metacharacters.
func IsPattern(eventType string) bool {
	return strings.ContainsAny(eventType, "*?")
}

func (e *Event) TenantID() string {
	return e.Metadata.TenantID
}

// IsRetryable reports whether a failed event still has retry budget.
func (e *Event) IsRetryable() bool {
	return e.Status == enums.EventStatusFailed && e.RetryCount < e.MaxRetries
}

// MarkPublished stamps published_at with the creation time.
func (e *Event) MarkPublished() {
	at := e.CreatedAt
	e.PublishedAt = &at
}

// AddDelivery registers a pending delivery for handler and returns its index.
func (e *Event) AddDelivery(handler string) int {
	e.Deliveries = append(e.Deliveries, Delivery{
		Handler: handler,
		Status:  enums.EventStatusPending,
	})
	return len(e.Deliveries) - 1
}

// ResetForReplay clears every processing outcome so the event can be dispatched again.
func (e *Event) ResetForReplay() {
	e.Status = enums.EventStatusPending
	e.RetryCount = 0
	e.ErrorMessage = ""
	e.LastErrorAt = nil
	e.ProcessedAt = nil
	e.Deliveries = nil
}

// Aggregate derives the event-level status fields from its deliveries.
//
// In-flight deliveries win, then failures awaiting retry. Once every delivery is
// terminal the event is completed if any handler completed, dead_letter otherwise.
func (e *Event) Aggregate(now time.Time) {
	if len(e.Deliveries) == 0 {
		return
	}

	var (
		pending, inFlight, failed, completed int
		maxRetry                             int
		lastErrAt                            *time.Time
		lastErr                              string
	)
	for i := range e.Deliveries {
		d := &e.Deliveries[i]
		switch d.Status {
		case enums.EventStatusPending:
			pending++
		case enums.EventStatusProcessing:
			inFlight++
		case enums.EventStatusFailed:
			failed++
		case enums.EventStatusCompleted:
			completed++
		}
		if d.RetryCount > maxRetry {
			maxRetry = d.RetryCount
		}
		if d.LastErrorAt != nil && (lastErrAt == nil || !d.LastErrorAt.Before(*lastErrAt)) {
			at := *d.LastErrorAt
			lastErrAt = &at
			lastErr = d.ErrorMessage
		}
	}

	switch {
	case pending == len(e.Deliveries):
		e.Status = enums.EventStatusPending
	case inFlight > 0 || pending > 0:
		e.Status = enums.EventStatusProcessing
	case failed > 0:
		e.Status = enums.EventStatusFailed
	case completed > 0:
		e.Status = enums.EventStatusCompleted
	default:
		e.Status = enums.EventStatusDeadLetter
	}

	e.RetryCount = maxRetry
	e.LastErrorAt = lastErrAt
	e.ErrorMessage = lastErr
	if e.Status == enums.EventStatusCompleted && e.ProcessedAt == nil {
		at := now
		e.ProcessedAt = &at
	}
}

// HasDeadLetter reports whether the event, or any one of its handler deliveries, ran out
// of retries.
func (e *Event) HasDeadLetter() bool {
	if e.Status == enums.EventStatusDeadLetter {
		return true
	}
	for _, d := range e.Deliveries {
		if d.Status == enums.EventStatusDeadLetter {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to handlers or other goroutines.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := *e
	out.Payload = clonePayload(e.Payload)
	out.Metadata = e.Metadata.Clone()
	out.PublishedAt = cloneTime(e.PublishedAt)
	out.ProcessedAt = cloneTime(e.ProcessedAt)
	out.LastErrorAt = cloneTime(e.LastErrorAt)
	if e.Deliveries != nil {
		out.Deliveries = make([]Delivery, len(e.Deliveries))
		for i, d := range e.Deliveries {
			out.Deliveries[i] = d.clone()
		}
	}
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func clonePayload(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return clonePayload(typed)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

package eventbus

import (
	"context"
	"strings"

	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

// HandlerFunc reacts to an event. Returning an error schedules a retry.
// The event is a snapshot; changes to it are not recorded.
type HandlerFunc func(ctx context.Context, evt *events.Event) error

// Handler is a named HandlerFunc. Subscriptions and deliveries refer to handlers by pointer,
// so the same *Handler must be passed to Unsubscribe.
type Handler struct {
	name string
	fn   HandlerFunc
}

func NewHandler(name string, fn HandlerFunc) *Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "anonymous"
	}
	return &Handler{name: name, fn: fn}
}

func (h *Handler) Name() string {
	if h == nil {
		return ""
	}
	return h.name
}

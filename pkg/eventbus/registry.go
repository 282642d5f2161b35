package eventbus

import (
	"sync"

	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

type patternSubscription struct {
	pattern string
	handler *Handler
}

// registry maps exact event types and glob patterns to handlers.
type registry struct {
	mu       sync.RWMutex
	exact    map[string][]*Handler
	patterns []patternSubscription
}

func newRegistry() *registry {
	return &registry{exact: map[string][]*Handler{}}
}

func (r *registry) add(eventType string, h *Handler) error {
	if events.IsPattern(eventType) {
		if err := events.ValidatePattern(eventType); err != nil {
			return events.WrapValidationError(err, "invalid subscription pattern").
				WithDetails(map[string]any{"event_type": eventType})
		}
		r.mu.Lock()
		r.patterns = append(r.patterns, patternSubscription{pattern: eventType, handler: h})
		r.mu.Unlock()
		return nil
	}
	r.mu.Lock()
	r.exact[eventType] = append(r.exact[eventType], h)
	r.mu.Unlock()
	return nil
}

// remove drops the first registration of h under eventType.
func (r *registry) remove(eventType string, h *Handler) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if events.IsPattern(eventType) {
		for i, sub := range r.patterns {
			if sub.pattern == eventType && sub.handler == h {
				r.patterns = append(r.patterns[:i:i], r.patterns[i+1:]...)
				return true
			}
		}
		return false
	}

	list := r.exact[eventType]
	for i, candidate := range list {
		if candidate == h {
			list = append(list[:i:i], list[i+1:]...)
			if len(list) == 0 {
				delete(r.exact, eventType)
			} else {
				r.exact[eventType] = list
			}
			return true
		}
	}
	return false
}

// match returns exact subscribers in registration order followed by matching patterns in
// registration order. A handler registered twice appears twice.
func (r *registry) match(eventType string) []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	exact := r.exact[eventType]
	out := make([]*Handler, 0, len(exact)+len(r.patterns))
	out = append(out, exact...)
	for _, sub := range r.patterns {
		if ok, _ := events.MatchPattern(sub.pattern, eventType); ok {
			out = append(out, sub.handler)
		}
	}
	return out
}

func (r *registry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := len(r.patterns)
	for _, list := range r.exact {
		n += len(list)
	}
	return n
}

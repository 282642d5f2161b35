package eventstore

import (
	"context"
	"sync"

	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

// MemoryStore keeps events in a process-local map. It serves single-node mode, tests, and
// the fallback path of KVStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*events.Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[string]*events.Event{}}
}

func (s *MemoryStore) SaveEvent(_ context.Context, evt *events.Event) error {
	if evt == nil {
		return events.NewValidationError("event is required")
	}
	s.mu.Lock()
	s.records[evt.ID] = evt.Clone()
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) UpdateEvent(ctx context.Context, evt *events.Event) error {
	return s.SaveEvent(ctx, evt)
}

func (s *MemoryStore) GetEvent(_ context.Context, eventID string) (*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if evt, ok := s.records[eventID]; ok {
		return evt.Clone(), nil
	}
	return nil, nil
}

// QueryEvents follows the same plan as the durable store: the newest Limit members of the
// chosen index are resolved first, then the remaining filters are applied.
func (s *MemoryStore) QueryEvents(_ context.Context, q Query) ([]*events.Event, error) {
	idx := q.plan()

	s.mu.RLock()
	members := make([]*events.Event, 0, len(s.records))
	for _, evt := range s.records {
		if inIndex(evt, idx) {
			members = append(members, evt)
		}
	}
	s.mu.RUnlock()

	sortNewestFirst(members)
	if limit := q.limit(); len(members) > limit {
		members = members[:limit]
	}

	out := filter(members, q)
	for i, evt := range out {
		out[i] = evt.Clone()
	}
	return out, nil
}

func (s *MemoryStore) GetDeadLetterEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	return s.QueryEvents(ctx, deadLetterQuery(limit))
}

func (s *MemoryStore) ClearOldEvents(_ context.Context, days int) (int, error) {
	cutoff := retentionCutoff(days, events.Now())

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, evt := range s.records {
		if evt.CreatedAt.Before(cutoff) {
			delete(s.records, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) remove(eventID string) {
	s.mu.Lock()
	delete(s.records, eventID)
	s.mu.Unlock()
}

// Len reports how many events are held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func inIndex(evt *events.Event, idx index) bool {
	for _, member := range indexesFor(evt) {
		if member == idx {
			return true
		}
	}
	return false
}

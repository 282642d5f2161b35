package eventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	pferrors "github.com/angelmondragon/packfinderz-events/pkg/errors"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
	"github.com/angelmondragon/packfinderz-events/pkg/logger"
)

const defaultKeyPrefix = "pf:events"

// KVOptions tunes key layout and retention.
type KVOptions struct {
	KeyPrefix string
	Retention time.Duration
	Metrics   FallbackRecorder
}

// KVStore persists events in a durable key/value backend with sorted-set indexes by type,
// status, tenant and a global index. Backend failures degrade to an in-process map and are
// logged, never returned.
type KVStore struct {
	backend   Backend
	fallback  *MemoryStore
	logg      *logger.Logger
	metrics   FallbackRecorder
	prefix    string
	retention time.Duration
}

// NewKVStore builds a KVStore. A nil backend serves every call from the fallback map.
func NewKVStore(backend Backend, logg *logger.Logger, opts KVOptions) *KVStore {
	prefix := strings.TrimSuffix(strings.TrimSpace(opts.KeyPrefix), ":")
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	retention := opts.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &KVStore{
		backend:   backend,
		fallback:  NewMemoryStore(),
		logg:      logg,
		metrics:   opts.Metrics,
		prefix:    prefix,
		retention: retention,
	}
}

func (s *KVStore) eventKey(eventID string) string {
	return fmt.Sprintf("%s:event:%s", s.prefix, eventID)
}

func (s *KVStore) indexKey(idx index) string {
	if idx.value == "" {
		return fmt.Sprintf("%s:index:%s", s.prefix, idx.kind)
	}
	return fmt.Sprintf("%s:index:%s:%s", s.prefix, idx.kind, idx.value)
}

func (s *KVStore) SaveEvent(ctx context.Context, evt *events.Event) error {
	if evt == nil {
		return events.NewValidationError("event is required")
	}
	if s.backend == nil {
		return s.fallback.SaveEvent(ctx, evt)
	}
	if err := s.persist(ctx, evt); err != nil {
		s.degrade(ctx, "save", evt.ID, err)
		return s.fallback.SaveEvent(ctx, evt)
	}
	// a copy parked during an outage is now superseded
	s.fallback.remove(evt.ID)
	return nil
}

func (s *KVStore) UpdateEvent(ctx context.Context, evt *events.Event) error {
	return s.SaveEvent(ctx, evt)
}

func (s *KVStore) persist(ctx context.Context, evt *events.Event) error {
	data, err := events.Encode(evt)
	if err != nil {
		return err
	}

	prev, err := s.load(ctx, evt.ID)
	if err != nil {
		return err
	}
	for _, idx := range staleIndexes(prev, evt) {
		if err := s.backend.ZRem(ctx, s.indexKey(idx), evt.ID); err != nil {
			return fmt.Errorf("remove %s from %s index: %w", evt.ID, idx.kind, err)
		}
	}

	if err := s.backend.SetEX(ctx, s.eventKey(evt.ID), string(data), s.retention); err != nil {
		return fmt.Errorf("write event %s: %w", evt.ID, err)
	}

	score := indexScore(evt)
	for _, idx := range indexesFor(evt) {
		key := s.indexKey(idx)
		if err := s.backend.ZAdd(ctx, key, score, evt.ID); err != nil {
			return fmt.Errorf("index %s by %s: %w", evt.ID, idx.kind, err)
		}
		if err := s.backend.Expire(ctx, key, s.retention); err != nil {
			return fmt.Errorf("expire %s index: %w", idx.kind, err)
		}
	}
	return nil
}

// load reads one record from the backend. A missing key yields nil.
func (s *KVStore) load(ctx context.Context, eventID string) (*events.Event, error) {
	raw, found, err := s.backend.Get(ctx, s.eventKey(eventID))
	if err != nil {
		return nil, fmt.Errorf("read event %s: %w", eventID, err)
	}
	if !found {
		return nil, nil
	}
	evt, err := events.Decode([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode event %s: %w", eventID, err)
	}
	return evt, nil
}

func (s *KVStore) GetEvent(ctx context.Context, eventID string) (*events.Event, error) {
	if s.backend != nil {
		evt, err := s.load(ctx, eventID)
		if err != nil {
			s.degrade(ctx, "get", eventID, err)
		} else if evt != nil {
			return evt, nil
		}
	}
	return s.fallback.GetEvent(ctx, eventID)
}

func (s *KVStore) QueryEvents(ctx context.Context, q Query) ([]*events.Event, error) {
	fromFallback, _ := s.fallback.QueryEvents(ctx, q)
	if s.backend == nil {
		return fromFallback, nil
	}

	fromBackend, err := s.queryBackend(ctx, q)
	if err != nil {
		s.degrade(ctx, "query", "", err)
		return fromFallback, nil
	}
	return merge(fromBackend, s.unsynced(ctx, fromFallback), q.limit()), nil
}

// unsynced keeps the fallback records the backend does not hold. The backend copy of an
// event is authoritative, as in GetEvent, so a parked copy it supersedes is evicted.
func (s *KVStore) unsynced(ctx context.Context, list []*events.Event) []*events.Event {
	out := list[:0]
	for _, evt := range list {
		current, err := s.load(ctx, evt.ID)
		if err == nil && current != nil {
			s.fallback.remove(evt.ID)
			continue
		}
		out = append(out, evt)
	}
	return out
}

func (s *KVStore) queryBackend(ctx context.Context, q Query) ([]*events.Event, error) {
	idx := q.plan()
	ids, err := s.backend.ZRevRange(ctx, s.indexKey(idx), 0, int64(q.limit()-1))
	if err != nil {
		return nil, fmt.Errorf("range %s index: %w", idx.kind, err)
	}

	out := make([]*events.Event, 0, len(ids))
	for _, id := range ids {
		evt, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		// the record may have expired ahead of its index entry
		if evt != nil && q.Matches(evt) {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (s *KVStore) GetDeadLetterEvents(ctx context.Context, limit int) ([]*events.Event, error) {
	return s.QueryEvents(ctx, deadLetterQuery(limit))
}

// ClearOldEvents only trims the fallback map; backend keys expire on their own TTL.
func (s *KVStore) ClearOldEvents(ctx context.Context, days int) (int, error) {
	return s.fallback.ClearOldEvents(ctx, days)
}

func (s *KVStore) degrade(ctx context.Context, operation, eventID string, err error) {
	if s.metrics != nil {
		s.metrics.StoreFallback(operation)
	}
	if s.logg == nil {
		return
	}
	fields := pferrors.Dump(err).Fields()
	fields["operation"] = operation
	if eventID != "" {
		fields["event_id"] = eventID
	}
	s.logg.Warn(s.logg.WithFields(ctx, fields), "event store backend unavailable, using in-process fallback")
}

// merge combines backend and fallback results, preferring backend copies.
func merge(primary, secondary []*events.Event, limit int) []*events.Event {
	if len(secondary) == 0 {
		return primary
	}
	seen := make(map[string]struct{}, len(primary))
	out := make([]*events.Event, 0, len(primary)+len(secondary))
	for _, evt := range primary {
		seen[evt.ID] = struct{}{}
		out = append(out, evt)
	}
	for _, evt := range secondary {
		if _, ok := seen[evt.ID]; !ok {
			out = append(out, evt)
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

package eventstore

import (
	"context"
	"sort"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

const (
	DefaultQueryLimit    = 100
	DefaultRetentionDays = 7
	DefaultRetention     = DefaultRetentionDays * 24 * time.Hour
)

// Store persists events and answers indexed queries. Implementations never mutate the events they are given.
type Store interface {
	SaveEvent(ctx context.Context, evt *events.Event) error
	// GetEvent returns nil without error when the event is unknown.
	GetEvent(ctx context.Context, eventID string) (*events.Event, error)
	QueryEvents(ctx context.Context, q Query) ([]*events.Event, error)
	UpdateEvent(ctx context.Context, evt *events.Event) error
	GetDeadLetterEvents(ctx context.Context, limit int) ([]*events.Event, error)
	// ClearOldEvents removes events created more than days ago and returns how many were removed.
	ClearOldEvents(ctx context.Context, days int) (int, error)
}

// Query filters events. Empty fields are ignored.
type Query struct {
	EventType string
	Status    enums.EventStatus
	TenantID  string
	// DeadLettered keeps events that dead-lettered as a whole or in any handler delivery.
	DeadLettered bool
	Limit        int
}

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Matches applies every filter to evt.
func (q Query) Matches(evt *events.Event) bool {
	if evt == nil {
		return false
	}
	if q.EventType != "" && evt.Type != q.EventType {
		return false
	}
	if q.Status != "" && evt.Status != q.Status {
		return false
	}
	if q.TenantID != "" && evt.TenantID() != q.TenantID {
		return false
	}
	if q.DeadLettered && !evt.HasDeadLetter() {
		return false
	}
	return true
}

type indexKind string

const (
	indexType   indexKind = "type"
	indexStatus indexKind = "status"
	indexTenant indexKind = "tenant"
	indexDead   indexKind = "dead_letter"
	indexAll    indexKind = "all"
)

// index names one sorted set of event ids.
type index struct {
	kind  indexKind
	value string
}

// plan picks the single most specific index for q: dead letters, type, status, tenant, then all.
func (q Query) plan() index {
	switch {
	case q.DeadLettered:
		return index{kind: indexDead}
	case q.EventType != "":
		return index{kind: indexType, value: q.EventType}
	case q.Status != "":
		return index{kind: indexStatus, value: q.Status.String()}
	case q.TenantID != "":
		return index{kind: indexTenant, value: q.TenantID}
	default:
		return index{kind: indexAll}
	}
}

// indexesFor lists every index an event belongs to.
func indexesFor(evt *events.Event) []index {
	out := []index{
		{kind: indexType, value: evt.Type},
		{kind: indexStatus, value: evt.Status.String()},
	}
	if tenant := evt.TenantID(); tenant != "" {
		out = append(out, index{kind: indexTenant, value: tenant})
	}
	if evt.HasDeadLetter() {
		out = append(out, index{kind: indexDead})
	}
	return append(out, index{kind: indexAll})
}

// staleIndexes returns the memberships of prev that cur no longer has.
func staleIndexes(prev, cur *events.Event) []index {
	if prev == nil {
		return nil
	}
	keep := map[index]struct{}{}
	for _, idx := range indexesFor(cur) {
		keep[idx] = struct{}{}
	}
	var stale []index
	for _, idx := range indexesFor(prev) {
		if _, ok := keep[idx]; !ok {
			stale = append(stale, idx)
		}
	}
	return stale
}

func indexScore(evt *events.Event) float64 {
	return float64(evt.CreatedAt.UnixMicro())
}

// sortNewestFirst orders events by creation time, newest first, breaking ties by id.
func sortNewestFirst(list []*events.Event) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func filter(list []*events.Event, q Query) []*events.Event {
	out := make([]*events.Event, 0, len(list))
	for _, evt := range list {
		if q.Matches(evt) {
			out = append(out, evt)
		}
	}
	return out
}

func retentionCutoff(days int, now time.Time) time.Time {
	if days <= 0 {
		days = DefaultRetentionDays
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// Nop is the store used when persistence is disabled.
type Nop struct{}

// deadLetterQuery backs every GetDeadLetterEvents.
func deadLetterQuery(limit int) Query {
	return Query{DeadLettered: true, Limit: limit}
}

func (Nop) SaveEvent(context.Context, *events.Event) error { return nil }

func (Nop) GetEvent(context.Context, string) (*events.Event, error) { return nil, nil }

func (Nop) QueryEvents(context.Context, Query) ([]*events.Event, error) { return nil, nil }

func (Nop) UpdateEvent(context.Context, *events.Event) error { return nil }

func (Nop) GetDeadLetterEvents(context.Context, int) ([]*events.Event, error) { return nil, nil }

func (Nop) ClearOldEvents(context.Context, int) (int, error) { return 0, nil }

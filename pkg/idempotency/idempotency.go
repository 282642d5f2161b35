package idempotency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/redis"
)

const (
	stateProcessing = "processing"
	stateDone       = "done"
)

// Manager tracks which broadcast events a consumer has handled. A claim starts as a
// short processing lease so a crashed consumer does not block redelivery for the full
// TTL; Complete promotes it to a done mark kept for ttl.
//
// Keys follow the `pf:idempotency:evt:processed:<consumer>:<event_id>` pattern.
type Manager struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	lease time.Duration
}

// NewManager builds a guard whose done marks live for ttl and whose in-flight claims
// expire after lease. A zero lease claims for the full ttl.
func NewManager(store redis.IdempotencyStore, ttl, lease time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 || lease < 0 {
		return nil, errors.New("ttl and lease must be non-negative")
	}
	if lease == 0 || (ttl > 0 && lease > ttl) {
		lease = ttl
	}
	return &Manager{store: store, ttl: ttl, lease: lease}, nil
}

// CheckAndMarkProcessed returns true if the event is already claimed or done for
// consumer; otherwise it claims the event under the processing lease.
func (m *Manager) CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error) {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return false, err
	}
	set, err := m.store.SetNX(ctx, key, stateProcessing, m.lease)
	if err != nil {
		return false, fmt.Errorf("claim %s: %w", key, err)
	}
	return !set, nil
}

// Complete marks a claimed event as done for the full ttl.
func (m *Manager) Complete(ctx context.Context, consumer, eventID string) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	if err := m.store.SetEX(ctx, key, stateDone, m.ttl); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

// Release forgets a claim so a redelivery is handled again.
func (m *Manager) Release(ctx context.Context, consumer, eventID string) error {
	key, err := m.processedKey(consumer, eventID)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (m *Manager) processedKey(consumer, eventID string) (string, error) {
	consumer = strings.TrimSpace(consumer)
	eventID = strings.TrimSpace(eventID)
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == "" {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("evt:processed:"+consumer, eventID), nil
}

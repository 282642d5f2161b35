package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/angelmondragon/packfinderz-events/pkg/enums"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

// tracker serializes every mutation of one event across its concurrent deliveries.
type tracker struct {
	mu     sync.Mutex
	evt    *events.Event
	record bool
}

// dispatch runs every handler concurrently and returns once all of them are terminal. A retry
// wait cut short by ctx dead-letters that delivery, and dispatch then reports abandoned.
func (b *Bus) dispatch(ctx context.Context, evt *events.Event, handlers []*Handler, record bool) (abandoned bool) {
	if len(handlers) == 0 {
		return false
	}

	t := &tracker{evt: evt, record: record}
	slots := make([]int, len(handlers))
	t.mu.Lock()
	for i, h := range handlers {
		slots[i] = evt.AddDelivery(h.Name())
	}
	t.mu.Unlock()

	var (
		wg          sync.WaitGroup
		interrupted atomic.Bool
	)
	for i, h := range handlers {
		wg.Add(1)
		go func(slot int, h *Handler) {
			defer wg.Done()
			if !b.deliver(ctx, t, slot, h) {
				interrupted.Store(true)
			}
		}(slots[i], h)
	}
	wg.Wait()
	return interrupted.Load()
}

// deliver drives one handler to a terminal state. It returns false when the retry chain was
// abandoned because ctx ended.
func (b *Bus) deliver(ctx context.Context, t *tracker, slot int, h *Handler) bool {
	for {
		snapshot, _ := b.mutate(ctx, t, slot, func(evt *events.Event) {
			evt.Deliveries[slot].MarkProcessing()
		})

		// Running invocations always finish; only the waits between them are interruptible.
		start := time.Now()
		err := b.invoke(context.WithoutCancel(ctx), h, snapshot)
		b.metrics.ObserveHandler(h.Name(), time.Since(start), err != nil)

		if err == nil {
			b.mutate(ctx, t, slot, func(evt *events.Event) {
				evt.Deliveries[slot].MarkCompleted(events.Now())
			})
			return true
		}

		_, delivery := b.mutate(ctx, t, slot, func(evt *events.Event) {
			evt.Deliveries[slot].MarkFailed(err, events.Now(), evt.MaxRetries)
		})

		logCtx := b.logg.WithHandler(b.logg.WithEvent(ctx, snapshot.ID, snapshot.Type), h.Name())
		logCtx = b.logg.WithFields(logCtx, map[string]any{
			"retry_count": delivery.RetryCount,
			"error":       err.Error(),
		})
		b.logg.Warn(logCtx, "event handler failed")

		if delivery.Status == enums.EventStatusDeadLetter {
			b.logg.Error(logCtx, "event handler exhausted retries", events.NewHandlerError(h.Name(), err))
			b.metrics.IncDeadLettered(snapshot.Type)
			return true
		}

		if err := b.sleep(ctx, b.retryDelay(delivery.RetryCount)); err != nil {
			b.mutate(ctx, t, slot, func(evt *events.Event) {
				evt.Deliveries[slot].Abandon(fmt.Errorf("retry abandoned: %w", err), events.Now())
			})
			b.logg.Warn(logCtx, "retry abandoned: dispatch interrupted")
			b.metrics.IncDeadLettered(snapshot.Type)
			return false
		}
	}
}

// mutate applies fn to the shared event, re-aggregates, persists when recording, and returns a
// snapshot plus the delivery at slot as it stands after the change.
func (b *Bus) mutate(ctx context.Context, t *tracker, slot int, fn func(*events.Event)) (*events.Event, events.Delivery) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn(t.evt)
	t.evt.Aggregate(events.Now())

	if t.record {
		if err := b.store.UpdateEvent(context.WithoutCancel(ctx), t.evt); err != nil {
			logCtx := b.logg.WithEventID(ctx, t.evt.ID)
			b.logg.Error(logCtx, "failed to persist event status", err)
		}
	}
	return t.evt.Clone(), t.evt.Deliveries[slot]
}

// retryDelay is the wait before the next attempt after the given number of failures.
func (b *Bus) retryDelay(failures int) time.Duration {
	d := nextBackoff(b.opts.RetryBaseDelay, failures-1, b.opts.RetryMaxDelay)
	if b.opts.RetryJitter {
		d = withJitter(d)
	}
	return d
}

func (b *Bus) invoke(ctx context.Context, h *Handler, evt *events.Event) error {
	if b.opts.HandlerTimeout <= 0 {
		return callHandler(ctx, h, evt)
	}

	callCtx, cancel := context.WithTimeout(ctx, b.opts.HandlerTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- callHandler(callCtx, h, evt)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return fmt.Errorf("handler %s timed out after %s", h.Name(), b.opts.HandlerTimeout)
		}
		return callCtx.Err()
	}
}

func callHandler(ctx context.Context, h *Handler, evt *events.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler %s panicked: %v", h.Name(), r)
		}
	}()
	return h.fn(ctx, evt)
}

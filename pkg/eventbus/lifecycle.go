package eventbus

import (
	"context"
	"time"
)

// Start launches the retention sweeper. Calling Start on a running bus is a no-op.
func (b *Bus) Start(ctx context.Context) error {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	if b.running {
		return nil
	}
	b.running = true

	if !b.persist || b.opts.SweepInterval <= 0 || b.opts.RetentionDays <= 0 {
		return nil
	}

	sweepCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	b.stopSweeper = cancel
	b.sweeperDone = done
	go b.runSweeper(sweepCtx, done)
	b.logg.Info(b.logg.WithFields(ctx, map[string]any{
		"retention_days": b.opts.RetentionDays,
		"sweep_interval": b.opts.SweepInterval.String(),
	}), "event retention sweeper started")
	return nil
}

// Stop cancels the sweeper and waits for it and for in-flight broadcasts. Dispatches waiting
// to retry dead-letter the pending delivery. Idempotent.
func (b *Bus) Stop() error {
	b.lifeMu.Lock()
	if !b.running {
		b.lifeMu.Unlock()
		return nil
	}
	b.running = false
	b.draining = true
	b.haltCancel()
	b.halt, b.haltCancel = context.WithCancel(context.Background())
	cancel, done := b.stopSweeper, b.sweeperDone
	b.stopSweeper, b.sweeperDone = nil, nil
	b.lifeMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	b.broadcasts.Wait()

	b.lifeMu.Lock()
	b.draining = false
	b.lifeMu.Unlock()
	return nil
}

func (b *Bus) IsRunning() bool {
	b.lifeMu.Lock()
	defer b.lifeMu.Unlock()
	return b.running
}

// Ping reports readiness: the bus is ready while started.
func (b *Bus) Ping(context.Context) error {
	if !b.IsRunning() {
		return errStopped
	}
	return nil
}

func (b *Bus) runSweeper(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(b.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.sweep(ctx)
		}
	}
}

// sweep removes records older than the retention window. With a SweepLock, only the
// instance holding the lock sweeps.
func (b *Bus) sweep(ctx context.Context) int {
	if b.lock != nil {
		acquired, err := b.lock.Acquire(ctx)
		if err != nil {
			b.logg.Error(ctx, "event retention lock failed", err)
			return 0
		}
		if !acquired {
			return 0
		}
		defer func() {
			if err := b.lock.Release(context.WithoutCancel(ctx)); err != nil {
				b.logg.Error(ctx, "event retention lock release failed", err)
			}
		}()
	}

	removed, err := b.store.ClearOldEvents(ctx, b.opts.RetentionDays)
	if err != nil {
		b.logg.Error(ctx, "event retention sweep failed", err)
		return 0
	}
	if removed > 0 {
		b.logg.Info(b.logg.WithField(ctx, "removed", removed), "event retention sweep complete")
	}
	return removed
}

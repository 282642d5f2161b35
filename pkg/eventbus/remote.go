package eventbus

import (
	"context"

	pferrors "github.com/angelmondragon/packfinderz-events/pkg/errors"
	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

// broadcast sends a pending copy of evt to the distributed channel without blocking the caller.
func (b *Bus) broadcast(ctx context.Context, evt *events.Event) {
	if b.channel == nil {
		return
	}

	out := evt.Clone()
	out.Metadata.Set(events.MetadataOrigin, b.opts.InstanceID)
	channel := b.opts.ChannelName(out.Type)

	logCtx := b.logg.WithField(b.logg.WithEvent(ctx, out.ID, out.Type), "channel", channel)

	payload, err := events.Encode(out)
	if err != nil {
		b.logg.Warn(b.logg.WithFields(logCtx, pferrors.Dump(err).Fields()), "event broadcast encode failed")
		b.metrics.IncBroadcastFailure()
		return
	}

	b.lifeMu.Lock()
	if b.draining {
		b.lifeMu.Unlock()
		b.logg.Warn(logCtx, "event broadcast skipped: bus stopping")
		b.metrics.IncBroadcastFailure()
		return
	}
	b.broadcasts.Add(1)
	b.lifeMu.Unlock()

	go func() {
		defer b.broadcasts.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.opts.BroadcastTimeout)
		defer cancel()
		if err := b.channel.Publish(sendCtx, channel, payload); err != nil {
			b.logg.Warn(b.logg.WithFields(logCtx, pferrors.Dump(err).Fields()), "event broadcast failed")
			b.metrics.IncBroadcastFailure()
		}
	}()
}

// HandleRemote ingests a broadcast from another instance and dispatches it to local handlers.
// Malformed payloads and this instance's own broadcasts are dropped. Remote deliveries are not
// written to the store.
func (b *Bus) HandleRemote(ctx context.Context, channel string, payload []byte) error {
	logCtx := b.logg.WithField(ctx, "channel", channel)

	evt, err := events.Decode(payload)
	if err != nil {
		b.logg.Warn(b.logg.WithFields(logCtx, pferrors.Dump(err).Fields()), "dropping malformed event broadcast")
		return nil
	}
	logCtx = b.logg.WithEvent(logCtx, evt.ID, evt.Type)
	if evt.Metadata.Origin() == b.opts.InstanceID {
		b.logg.Debug(logCtx, "ignoring own event broadcast")
		return nil
	}

	if b.dedupe != nil {
		already, err := b.dedupe.CheckAndMarkProcessed(ctx, b.opts.InstanceID, evt.ID)
		if err != nil {
			return err
		}
		if already {
			b.logg.Debug(logCtx, "skipping duplicate event broadcast")
			return nil
		}
	}

	evt.ResetForReplay()
	runCtx, done := b.dispatchContext(ctx, false)
	abandoned := b.dispatch(runCtx, evt, b.registry.match(evt.Type), false)
	done()

	// Interrupted mid-dispatch: forget the mark so the redelivery is handled.
	if abandoned {
		if b.dedupe != nil {
			if err := b.dedupe.Release(context.WithoutCancel(ctx), b.opts.InstanceID, evt.ID); err != nil {
				b.logg.Error(logCtx, "failed to release idempotency mark", err)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return errStopped
	}
	if b.dedupe != nil {
		if err := b.dedupe.Complete(context.WithoutCancel(ctx), b.opts.InstanceID, evt.ID); err != nil {
			b.logg.Error(logCtx, "failed to complete idempotency mark", err)
		}
	}
	b.logg.Info(b.logg.WithField(logCtx, "status", string(evt.Status)), "remote event dispatched")
	return nil
}

package pubsub

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/packfinderz-events/pkg/events"
)

// AttrChannel carries the logical bus channel on every Pub/Sub message.
const AttrChannel = "channel"

// MessageHandler consumes one broadcast payload.
type MessageHandler func(ctx context.Context, channel string, payload []byte) error

// Publish sends payload to the events topic tagged with channel and waits for the server ack.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	publisher := c.EventsPublisher()
	if publisher == nil {
		return errNotInitialized
	}
	result := publisher.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: map[string]string{AttrChannel: channel},
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Receive pulls from the events subscription until ctx is cancelled. Messages whose channel does not
// match pattern are acked and dropped; handler errors nack the message for redelivery.
func (c *Client) Receive(ctx context.Context, pattern string, handle MessageHandler) error {
	sub := c.EventsSubscription()
	if sub == nil {
		return errNotInitialized
	}
	return sub.Receive(ctx, func(msgCtx context.Context, msg *pubsub.Message) {
		if c.route(msgCtx, pattern, msg.Attributes[AttrChannel], msg.Data, handle) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// route reports whether the message should be acked.
func (c *Client) route(ctx context.Context, pattern, channel string, payload []byte, handle MessageHandler) bool {
	if ok, err := events.MatchPattern(pattern, channel); err != nil || !ok {
		return true
	}
	if err := handle(ctx, channel, payload); err != nil {
		if c.logg != nil {
			logCtx := c.logg.WithFields(ctx, map[string]any{"channel": channel, "pattern": pattern})
			c.logg.Error(logCtx, "pubsub broadcast handler failed", err)
		}
		return false
	}
	return true
}

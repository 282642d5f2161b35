package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

// DefaultReceiveConcurrency caps how many broadcasts are handled at once per subscription.
const DefaultReceiveConcurrency = 16

// MessageHandler consumes one broadcast payload.
type MessageHandler func(ctx context.Context, channel string, payload []byte) error

// Publish broadcasts payload on channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if c.store == nil {
		return errNotInitialized
	}
	return c.store.Publish(ctx, channel, payload).Err()
}

// Receive subscribes to pattern and feeds every message to handle until ctx is cancelled.
// Messages are handled concurrently up to the receive limit; handler errors are logged and do
// not stop the subscription. Receive returns after in-flight handlers finish.
func (c *Client) Receive(ctx context.Context, pattern string, handle MessageHandler) error {
	if c.raw == nil {
		return errNotInitialized
	}
	sub := c.raw.PSubscribe(ctx, pattern)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	return c.consume(ctx, sub.Channel(), handle)
}

func (c *Client) consume(ctx context.Context, messages <-chan *redis.Message, handle MessageHandler) error {
	limit := c.receiveLimit
	if limit <= 0 {
		limit = DefaultReceiveConcurrency
	}
	var workers errgroup.Group
	workers.SetLimit(limit)
	defer workers.Wait()

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			workers.Go(func() error {
				c.handleMessage(ctx, msg, handle)
				return nil
			})
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *redis.Message, handle MessageHandler) {
	if err := handle(ctx, msg.Channel, []byte(msg.Payload)); err != nil && c.logg != nil {
		logCtx := c.logg.WithFields(ctx, map[string]any{"channel": msg.Channel, "pattern": msg.Pattern})
		c.logg.Error(logCtx, "redis broadcast handler failed", err)
	}
}

package eventstore

import (
	"context"
	"time"
)

// Backend is the durable key/value surface the KVStore needs. The redis client satisfies it;
// any store offering these six primitives can stand in.
type Backend interface {
	// Get returns found=false without error for a missing key.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRem(ctx context.Context, key string, members ...string) error
	// ZRevRange returns members from highest to lowest score, stop inclusive.
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// FallbackRecorder counts operations served by the in-process fallback.
type FallbackRecorder interface {
	StoreFallback(operation string)
}

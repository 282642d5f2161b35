package eventstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var errBackendDown = errors.New("backend unreachable")

type fakeBackend struct {
	mu      sync.Mutex
	values  map[string]string
	zsets   map[string]map[string]float64
	ttls    map[string]time.Duration
	failOps map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		values:  map[string]string{},
		zsets:   map[string]map[string]float64{},
		ttls:    map[string]time.Duration{},
		failOps: map[string]bool{},
	}
}

func (f *fakeBackend) fail(ops ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range ops {
		f.failOps[op] = true
	}
}

func (f *fakeBackend) recover() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOps = map[string]bool{}
}

func (f *fakeBackend) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps["get"] {
		return "", false, errBackendDown
	}
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeBackend) SetEX(_ context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps["setex"] {
		return errBackendDown
	}
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeBackend) ZAdd(_ context.Context, key string, score float64, member string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps["zadd"] {
		return errBackendDown
	}
	if f.zsets[key] == nil {
		f.zsets[key] = map[string]float64{}
	}
	f.zsets[key][member] = score
	return nil
}

func (f *fakeBackend) ZRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps["zrem"] {
		return errBackendDown
	}
	for _, m := range members {
		delete(f.zsets[key], m)
	}
	return nil
}

func (f *fakeBackend) ZRevRange(_ context.Context, key string, start, stop int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps["zrevrange"] {
		return nil, errBackendDown
	}
	set := f.zsets[key]
	members := make([]string, 0, len(set))
	for m := range set {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool {
		if set[members[i]] == set[members[j]] {
			return members[i] > members[j]
		}
		return set[members[i]] > set[members[j]]
	})
	if start >= int64(len(members)) {
		return nil, nil
	}
	if stop >= int64(len(members)) || stop < 0 {
		stop = int64(len(members)) - 1
	}
	return members[start : stop+1], nil
}

func (f *fakeBackend) Expire(_ context.Context, key string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOps["expire"] {
		return errBackendDown
	}
	f.ttls[key] = ttl
	return nil
}

func (f *fakeBackend) members(key string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.zsets[key]))
	for m := range f.zsets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

type countingRecorder struct {
	mu  sync.Mutex
	ops []string
}

func (c *countingRecorder) StoreFallback(operation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ops = append(c.ops, operation)
}

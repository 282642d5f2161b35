package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	values map[string]string
	setErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{values: map[string]string{}}
}

func (f *fakeStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeStore) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := f.values[key]
	return v, ok, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(f.values, k)
	}
	return nil
}

func TestNewRedisLockValidation(t *testing.T) {
	if _, err := NewRedisLock(nil, "key", time.Minute); err == nil {
		t.Fatalf("expected error for nil client")
	}
	if _, err := NewRedisLock(newFakeStore(), "", time.Minute); err == nil {
		t.Fatalf("expected error for empty key")
	}
	l, err := NewRedisLock(newFakeStore(), "key", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.ttl != defaultTTL {
		t.Fatalf("expected default ttl, got %s", l.ttl)
	}
}

func TestRedisLockExclusive(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	first, _ := NewRedisLock(store, "pf:lock:sweep", time.Minute)
	second, _ := NewRedisLock(store, "pf:lock:sweep", time.Minute)

	ok, err := first.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected first acquire, got %v %v", ok, err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || ok {
		t.Fatalf("expected second acquire to fail, got %v %v", ok, err)
	}

	if err := second.Release(ctx); err != nil {
		t.Fatalf("release by non-owner: %v", err)
	}
	if _, held := store.values["pf:lock:sweep"]; !held {
		t.Fatalf("non-owner release must not drop the lock")
	}

	if err := first.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = second.Acquire(ctx)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, got %v %v", ok, err)
	}
}

func TestRedisLockReleaseAfterExpiry(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	l, _ := NewRedisLock(store, "pf:lock:sweep", time.Minute)
	if ok, _ := l.Acquire(ctx); !ok {
		t.Fatalf("expected acquire")
	}

	store.values["pf:lock:sweep"] = "someone-else"
	if err := l.Release(ctx); err != nil {
		t.Fatalf("release: %v", err)
	}
	if store.values["pf:lock:sweep"] != "someone-else" {
		t.Fatalf("release must not delete a lock taken over by another owner")
	}
}

func TestRedisLockAcquireError(t *testing.T) {
	store := newFakeStore()
	store.setErr = errors.New("redis down")
	l, _ := NewRedisLock(store, "pf:lock:sweep", time.Minute)
	if _, err := l.Acquire(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

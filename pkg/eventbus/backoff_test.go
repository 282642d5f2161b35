package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestNextBackoff(t *testing.T) {
	cases := []struct {
		retry int
		max   time.Duration
		want  time.Duration
	}{
		{retry: 0, max: 30 * time.Second, want: time.Second},
		{retry: 1, max: 30 * time.Second, want: 2 * time.Second},
		{retry: 3, max: 30 * time.Second, want: 8 * time.Second},
		{retry: 5, max: 30 * time.Second, want: 30 * time.Second},
		{retry: 80, max: 30 * time.Second, want: 30 * time.Second},
		{retry: 4, max: 0, want: 16 * time.Second},
	}
	for _, tc := range cases {
		if got := nextBackoff(time.Second, tc.retry, tc.max); got != tc.want {
			t.Fatalf("retry %d: expected %s, got %s", tc.retry, tc.want, got)
		}
	}
	if got := nextBackoff(0, 3, time.Second); got != 0 {
		t.Fatalf("expected zero backoff for zero base, got %s", got)
	}
}

func TestWithJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		got := withJitter(time.Second)
		if got < 0 || got > time.Second {
			t.Fatalf("jitter out of range: %s", got)
		}
	}
	if withJitter(0) != 0 {
		t.Fatalf("expected zero jitter for zero delay")
	}
}

func TestSleepContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	if err := sleepContext(ctx, time.Minute); err == nil {
		t.Fatalf("expected context error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("sleep did not honour cancellation")
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

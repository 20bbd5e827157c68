package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLimiter_Wait(t *testing.T) {
	t.Parallel()

	// 10 RPS with burst 1: first call is free, second waits ~100ms.
	l := New(Config{
		DefaultRPS:   10,
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://example.com/foo"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	if err := l.Wait(ctx, "https://example.com/bar"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiter_DifferentDomains(t *testing.T) {
	t.Parallel()

	l := New(Config{
		DefaultRPS:   1, // 1 RPS = 1s interval
		DefaultBurst: 1,
	})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1"); err != nil {
		t.Fatal(err)
	}

	// Domain B should not be blocked by A.
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("domain B blocked unexpectedly")
	}
}

func TestLimiter_UnlimitedWhenRPSUnset(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 50; i++ {
		if err := l.Wait(ctx, "https://fast.com/page"); err != nil {
			t.Fatal(err)
		}
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Errorf("expected unlimited limiter to be immediate")
	}
}

func TestLimiter_CanceledContext(t *testing.T) {
	t.Parallel()

	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := l.Wait(ctx, "https://c.com/1"); err == nil {
		t.Fatal("expected error from canceled context")
	}
}

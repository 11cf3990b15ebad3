package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterBlocksSixthCall(t *testing.T) {
	limiter := NewMemoryLimiter(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		allowed, err := limiter.Allow(ctx, "session-a")
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("call %d should be allowed", i+1)
		}
	}

	allowed, err := limiter.Allow(ctx, "session-a")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Error("sixth call within the window should be rejected")
	}
}

func TestMemoryLimiterIndependentKeys(t *testing.T) {
	limiter := NewMemoryLimiter(5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		limiter.Allow(ctx, "session-a")
	}

	allowed, err := limiter.Allow(ctx, "session-b")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !allowed {
		t.Error("another session's counter must not affect this one")
	}
}

func TestMemoryLimiterResetsAfterWindow(t *testing.T) {
	limiter := NewMemoryLimiter(5, time.Minute)
	now := time.Now()
	limiter.nowFunc = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		limiter.Allow(ctx, "session-a")
	}
	if allowed, _ := limiter.Allow(ctx, "session-a"); allowed {
		t.Fatal("expected limit to be hit")
	}

	now = now.Add(61 * time.Second)

	allowed, err := limiter.Allow(ctx, "session-a")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if !allowed {
		t.Error("window elapsed, counter should have reset")
	}
}

func TestLimiterDefaults(t *testing.T) {
	limiter := NewMemoryLimiter(0, 0)
	if limiter.max != DefaultMax {
		t.Errorf("max = %d, expected %d", limiter.max, DefaultMax)
	}
	if limiter.Window() != DefaultWindow {
		t.Errorf("window = %s, expected %s", limiter.Window(), DefaultWindow)
	}
}

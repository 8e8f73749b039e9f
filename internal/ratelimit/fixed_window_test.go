package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newLimiter(t *testing.T, mr *miniredis.Miniredis, prefix string, limit int, window time.Duration) *FixedWindowLimiter {
	t.Helper()
	client, err := NewRedisClient(mr.Addr(), "")
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := NewFixedWindowLimiter(client, prefix, limit, window)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	ctx := context.Background()
	limiter := newLimiter(t, miniredis.RunT(t), "test:login", 2, time.Minute)

	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("second request should pass")
	}
	ok, retry := limiter.Allow(ctx, "ip-1")
	if ok {
		t.Fatalf("third request should be blocked")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retry after = %v, want within window", retry)
	}
	if ok, _ := limiter.Allow(ctx, "ip-2"); !ok {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterResetsNextWindow(t *testing.T) {
	ctx := context.Background()
	limiter := newLimiter(t, miniredis.RunT(t), "test:register", 1, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "ip-1"); ok {
		t.Fatalf("second request in window should be blocked")
	}
	now = now.Add(time.Second)
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("next window should start a fresh quota")
	}
}

func TestFixedWindowLimitersSharingClientAreIsolated(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	login := newLimiter(t, mr, "test:login", 1, time.Minute)
	password := newLimiter(t, mr, "test:password", 1, time.Minute)

	if ok, _ := login.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("login should pass")
	}
	if ok, _ := password.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("password limiter must not see login hits")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newLimiter(t, mr, "test:ratelimit", 1, time.Second)
	mr.Close()
	if ok, _ := limiter.Allow(context.Background(), "ip-1"); ok {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestNilLimiterAllows(t *testing.T) {
	var limiter *FixedWindowLimiter
	if ok, _ := limiter.Allow(context.Background(), "ip-1"); !ok {
		t.Fatalf("nil limiter should not limit")
	}
}

func TestNewFixedWindowLimiterValidation(t *testing.T) {
	if _, err := NewRedisClient(" ", ""); err == nil {
		t.Fatalf("expected error for empty redis addr")
	}
	if _, err := NewFixedWindowLimiter(nil, "", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	client, err := NewRedisClient(miniredis.RunT(t).Addr(), "")
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	defer client.Close()
	if _, err := NewFixedWindowLimiter(client, "", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}

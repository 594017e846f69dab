package ratelimit

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterEnforcesQuota(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "spacebooks:ratelimit:test", 3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	for i := 0; i < 3; i++ {
		if !limiter.Allow("203.0.113.5") {
			t.Fatalf("request %d should be within quota", i+1)
		}
	}
	if limiter.Allow("203.0.113.5") {
		t.Fatal("request over quota should be blocked")
	}
	if !limiter.Allow("203.0.113.9") {
		t.Fatal("distinct keys have independent quotas")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	redis := miniredis.RunT(t)
	limiter, err := NewRedisFixedWindowLimiter(redis.Addr(), "", "spacebooks:ratelimit:test", 5, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	redis.Close()

	if limiter.Allow("203.0.113.5") {
		t.Fatal("limiter should deny when redis is unreachable")
	}
}

func TestNewRedisFixedWindowLimiterValidation(t *testing.T) {
	cases := []struct {
		addr   string
		limit  int
		window time.Duration
	}{
		{"", 5, time.Minute},
		{"localhost:6379", 0, time.Minute},
		{"localhost:6379", 5, 0},
	}
	for i, tc := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			if l, err := NewRedisFixedWindowLimiter(tc.addr, "", "p", tc.limit, tc.window); err == nil || l != nil {
				t.Fatalf("expected constructor error for addr=%q limit=%d window=%v", tc.addr, tc.limit, tc.window)
			}
		})
	}
}

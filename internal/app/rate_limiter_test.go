package app

import (
	"testing"
	"time"
)

func TestChatRateLimiterWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewChatRateLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Fatal("within limit rejected")
	}
	if rl.Allow("u1") {
		t.Fatal("third message in window allowed")
	}
	if !rl.Allow("u2") {
		t.Error("limit leaked across users")
	}
	now = now.Add(11 * time.Second)
	if !rl.Allow("u1") {
		t.Error("window did not slide")
	}
	rl.Forget("u1")
	if !rl.Allow("u1") || !rl.Allow("u1") {
		t.Error("forgotten user still limited")
	}
}

func TestChatRateLimiterDisabled(t *testing.T) {
	rl := NewChatRateLimiter(0, time.Second)
	for i := 0; i < 100; i++ {
		if !rl.Allow("u1") {
			t.Fatal("disabled limiter rejected")
		}
	}
}

package ratelimit

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestFixedWindowLimiterBlocksOverQuota(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(mr.Addr(), "", "login", 3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	for i := 0; i < 3; i++ {
		if !limiter.Allow("203.0.113.7") {
			t.Fatalf("request %d within quota was blocked", i+1)
		}
	}
	if limiter.Allow("203.0.113.7") {
		t.Fatal("request over quota was allowed")
	}
	// Other keys are unaffected.
	if !limiter.Allow("203.0.113.8") {
		t.Fatal("different key was blocked")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter, err := NewFixedWindowLimiter(mr.Addr(), "", "login", 3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()
	if limiter.Allow("203.0.113.7") {
		t.Fatal("limiter allowed a request while redis is down")
	}
}

func TestFixedWindowLimiterValidation(t *testing.T) {
	if _, err := NewFixedWindowLimiter("", "", "login", 3, time.Minute); err == nil {
		t.Fatal("empty addr accepted")
	}
	if _, err := NewFixedWindowLimiter("localhost:6379", "", "login", 0, time.Minute); err == nil {
		t.Fatal("zero limit accepted")
	}
}

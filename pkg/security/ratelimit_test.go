package security

import (
	"testing"
)

func TestRateLimiterAllowsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, 1, 3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("user-a") {
			t.Fatalf("request %d should be allowed", i)
		}
	}
	if rl.Allow("user-a") {
		t.Fatal("request beyond user burst should be denied")
	}
}

func TestRateLimiterIsolatesUsers(t *testing.T) {
	rl := NewRateLimiter(1000, 1000, 1, 1)

	if !rl.Allow("user-a") {
		t.Fatal("first request from user-a should be allowed")
	}
	if rl.Allow("user-a") {
		t.Fatal("second request from user-a should be denied")
	}
	if !rl.Allow("user-b") {
		t.Fatal("user-b should have an independent budget")
	}
}

func TestRateLimiterGlobalCeiling(t *testing.T) {
	rl := NewRateLimiter(1, 2, 1000, 1000)

	rl.Allow("user-a")
	rl.Allow("user-b")
	if rl.Allow("user-c") {
		t.Fatal("request beyond global burst should be denied")
	}
}

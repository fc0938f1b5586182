package signal

import (
	"testing"
	"time"
)

func TestJoinLimiter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewJoinLimiter(2, 10*time.Second)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two attempts must pass")
	}
	if rl.Allow("a") {
		t.Fatal("third attempt inside window must be rejected")
	}
	if !rl.Allow("b") {
		t.Fatal("clients are limited independently")
	}

	now = now.Add(11 * time.Second)
	if !rl.Allow("a") {
		t.Fatal("attempt after window must pass")
	}
}

func TestJoinLimiterForget(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rl := NewJoinLimiter(1, time.Second)
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	now = now.Add(2 * time.Second)
	rl.Forget()
	if len(rl.history) != 0 {
		t.Fatalf("history = %v, want empty", rl.history)
	}
}

func TestJoinLimiterDisabled(t *testing.T) {
	rl := NewJoinLimiter(0, time.Second)
	for range 10 {
		if !rl.Allow("a") {
			t.Fatal("zero limit disables limiting")
		}
	}
}

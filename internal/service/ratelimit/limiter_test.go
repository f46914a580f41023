package ratelimit

import (
	"testing"
	"time"
)

func TestAllowAndRefill(t *testing.T) {
	l := New(2, 1)
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst should be allowed")
	}
	if l.Allow("a") {
		t.Fatal("bucket should be empty")
	}
	if !l.Allow("b") {
		t.Fatal("keys must be independent")
	}
	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("a") {
		t.Fatal("refill did not happen")
	}
	if l.Allow("a") {
		t.Fatal("only one token should have refilled")
	}
}

func TestSweep(t *testing.T) {
	l := New(1, 1)
	now := time.Unix(0, 0)
	l.now = func() time.Time { return now }
	l.Allow("a")
	now = now.Add(time.Minute)
	l.Allow("b")
	if n := l.Sweep(30 * time.Second); n != 1 {
		t.Fatalf("swept %d", n)
	}
}

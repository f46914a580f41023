package kafka

import (
	"testing"
	"time"
)

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 100*time.Millisecond, time.Second
	for attempt := 1; attempt <= 8; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		if d <= 0 || d > max {
			t.Fatalf("attempt %d: %v out of range", attempt, d)
		}
	}
	if d := backoffWithJitter(0, 0, 1); d <= 0 || d > 50*time.Millisecond {
		t.Fatalf("defaults: %v", d)
	}
}

func TestEncode(t *testing.T) {
	b, err := encode(map[string]int{"a": 1})
	if err != nil || string(b) != `{"a":1}` {
		t.Fatalf("encode = %s, %v", b, err)
	}
	b, _ = encode("raw")
	if string(b) != "raw" {
		t.Fatalf("string passthrough = %s", b)
	}
}

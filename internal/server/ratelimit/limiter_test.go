package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinBurst(t *testing.T) {
	l := NewLimiter(1, 3)
	defer l.Close()

	for i := range 3 {
		if r := l.Allow("a"); !r.Allowed {
			t.Fatalf("request %d denied within burst", i)
		}
	}
	r := l.Allow("a")
	if r.Allowed {
		t.Fatal("request beyond burst allowed")
	}
	if r.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v", r.RetryAfter)
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewLimiter(1, 1)
	defer l.Close()

	if !l.Allow("a").Allowed {
		t.Fatal("first request for a denied")
	}
	if l.Allow("a").Allowed {
		t.Fatal("second request for a allowed")
	}
	if !l.Allow("b").Allowed {
		t.Error("exhausting a also throttled b")
	}
}

func TestBucketRefills(t *testing.T) {
	l := NewLimiter(50, 1)
	defer l.Close()

	if !l.Allow("a").Allowed {
		t.Fatal("first request denied")
	}
	if l.Allow("a").Allowed {
		t.Fatal("immediate second request allowed")
	}
	time.Sleep(50 * time.Millisecond)
	if !l.Allow("a").Allowed {
		t.Error("bucket did not refill")
	}
}

package backoff

import (
	"testing"
	"time"
)

func TestNextDoublesUntilCap(t *testing.T) {
	p := New(5*time.Second, 60*time.Second)
	want := []time.Duration{
		5 * time.Second,
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		60 * time.Second,
		60 * time.Second,
	}
	for i, w := range want {
		if got := p.Next(); got != w {
			t.Fatalf("attempt %d: got %v, want %v", i, got, w)
		}
	}
}

func TestResetRestoresBase(t *testing.T) {
	p := New(time.Second, time.Minute)
	p.Next()
	p.Next()
	p.Reset()
	if got := p.Next(); got != time.Second {
		t.Fatalf("after reset: got %v, want %v", got, time.Second)
	}
}

func TestCooldownIndependentOfSequence(t *testing.T) {
	p := &Policy{Base: time.Second, Cap: time.Minute, Cooldown: 70 * time.Second}
	p.Next()
	p.Next()
	if got := p.CooldownDelay(); got != 70*time.Second {
		t.Fatalf("cooldown: got %v, want 70s", got)
	}
	// The doubling sequence is unaffected by reading the cooldown.
	if got := p.Next(); got != 4*time.Second {
		t.Fatalf("after cooldown read: got %v, want 4s", got)
	}
}

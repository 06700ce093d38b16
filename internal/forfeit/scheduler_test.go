package forfeit

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestFireAfterGrace(t *testing.T) {
	s := NewScheduler(20 * time.Millisecond)
	fired := make(chan struct{})
	s.Arm(1, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timer never fired")
	}
	if s.Armed(1) {
		t.Fatalf("fired timer must clear itself")
	}
}

func TestCancelBeforeExpiry(t *testing.T) {
	s := NewScheduler(30 * time.Millisecond)
	var fired atomic.Int32
	s.Arm(1, func() { fired.Add(1) })
	s.Cancel(1)

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("cancelled timer fired anyway")
	}
	if s.Armed(1) {
		t.Fatalf("cancelled timer still armed")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	s := NewScheduler(time.Minute)
	s.Cancel(42) // nothing armed, must not panic
	s.Arm(42, func() {})
	s.Cancel(42)
	s.Cancel(42)
}

func TestRearmReplacesPriorTimer(t *testing.T) {
	s := NewScheduler(25 * time.Millisecond)
	var first, second atomic.Int32
	s.Arm(1, func() { first.Add(1) })
	s.Arm(1, func() { second.Add(1) })

	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Fatalf("replaced timer fired")
	}
	if second.Load() != 1 {
		t.Fatalf("replacement fired %d times, want 1", second.Load())
	}
}

func TestRoomsAreIndependent(t *testing.T) {
	s := NewScheduler(20 * time.Millisecond)
	var a, b atomic.Int32
	s.Arm(1, func() { a.Add(1) })
	s.Arm(2, func() { b.Add(1) })
	s.Cancel(1)

	time.Sleep(80 * time.Millisecond)
	if a.Load() != 0 || b.Load() != 1 {
		t.Fatalf("cancelling room 1 affected room 2: a=%d b=%d", a.Load(), b.Load())
	}
}

func TestStopCancelsEverything(t *testing.T) {
	s := NewScheduler(20 * time.Millisecond)
	var n atomic.Int32
	for id := int64(1); id <= 5; id++ {
		s.Arm(id, func() { n.Add(1) })
	}
	s.Stop()
	time.Sleep(80 * time.Millisecond)
	if n.Load() != 0 {
		t.Fatalf("%d timers fired after Stop", n.Load())
	}
}

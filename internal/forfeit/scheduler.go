// Package forfeit manages the per-room reconnection grace timers. A
// disconnect is ambiguous (network blip vs abandonment); the grace window
// lets the coordinator distinguish them without blocking other rooms.
package forfeit

import (
	"sync"
	"time"
)

// Scheduler owns at most one armed timer per room. Each room's timer is
// independent; arming a room never touches another room's countdown.
type Scheduler struct {
	mu     sync.Mutex
	grace  time.Duration
	timers map[int64]*time.Timer
}

// NewScheduler creates a scheduler whose timers fire after grace. The
// window is injectable so tests can shrink it instead of sleeping 30s.
func NewScheduler(grace time.Duration) *Scheduler {
	return &Scheduler{grace: grace, timers: make(map[int64]*time.Timer)}
}

// Grace returns the configured reconnection window.
func (s *Scheduler) Grace() time.Duration { return s.grace }

// Arm starts the countdown for roomID, cancelling any timer already armed
// for it first. On expiry onFire runs exactly once and the slot clears
// itself; a Cancel that races the expiry suppresses the callback.
func (s *Scheduler) Arm(roomID int64, onFire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.timers[roomID]; ok {
		prev.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.grace, func() {
		s.mu.Lock()
		current, ok := s.timers[roomID]
		if !ok || current != t {
			// cancelled or replaced after this callback was scheduled
			s.mu.Unlock()
			return
		}
		delete(s.timers, roomID)
		s.mu.Unlock()
		onFire()
	})
	s.timers[roomID] = t
}

// Cancel stops the armed timer for roomID if present; a no-op otherwise.
// Must be called on every path that re-establishes the room's connection.
func (s *Scheduler) Cancel(roomID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[roomID]; ok {
		t.Stop()
		delete(s.timers, roomID)
	}
}

// Armed reports whether a live timer exists for roomID.
func (s *Scheduler) Armed(roomID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[roomID]
	return ok
}

// Stop cancels every armed timer. Used at shutdown.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

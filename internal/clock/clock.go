// Package clock provides the time source used by every subsystem.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Wall reads the system clock.
type Wall struct{}

// Now implements Clock.
func (Wall) Now() time.Time { return time.Now() }

// Manual is a clock that only moves when told to. The tick clock drives the
// simulated world time through one of these, and tests use it directly.
type Manual struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManual creates a manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now implements Clock.
func (m *Manual) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Advance moves the clock forward by d and returns the new time.
func (m *Manual) Advance(d time.Duration) time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	return m.now
}

// Set jumps the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

package timectrl

import (
	"sync"
	"time"
)

// Clock is an interface for accessing wall-clock time. The deadline monitor
// and tick pacer depend on this abstraction rather than calling time.Now
// directly, enabling deterministic tests.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// WallClock is the production Clock backed by the system clock.
type WallClock struct{}

// Now returns the current system time. Implements Clock.
func (WallClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock whose time only moves when told to. It is safe for
// concurrent use.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock constructs a manual clock starting at the given instant.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the clock's current instant. Implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetTime jumps the clock to the given instant.
func (c *ManualClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

package session

import (
	"sync"
	"time"
)

// Clock measures the elapsed time of a session. Paused spans are not
// counted. Clock is safe for concurrent use.
type Clock struct {
	now func() time.Time

	mu       sync.Mutex
	start    time.Time
	pausedAt time.Time
	paused   time.Duration
	stopped  time.Time
	running  bool
}

// NewClock returns a clock reading time from now. A nil now uses time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Start records the start instant and returns it. Starting a started clock
// returns the original instant.
func (c *Clock) Start() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.start.IsZero() {
		c.start = c.now()
		c.running = true
	}
	return c.start
}

// StartedAt returns the start instant, or the zero time.
func (c *Clock) StartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start
}

// Pause stops the clock until Resume. It reports whether the call changed
// anything.
func (c *Clock) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || !c.pausedAt.IsZero() {
		return false
	}
	c.pausedAt = c.now()
	return true
}

// Resume restarts a paused clock. It reports whether the call changed
// anything.
func (c *Clock) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.pausedAt.IsZero() {
		return false
	}
	c.paused += c.now().Sub(c.pausedAt)
	c.pausedAt = time.Time{}
	return true
}

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.pausedAt.IsZero()
}

// Stop freezes the clock and returns the final elapsed time.
func (c *Clock) Stop() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		c.stopped = c.now()
		c.running = false
	}
	return c.elapsed()
}

// Elapsed returns the running time excluding pauses.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed()
}

func (c *Clock) elapsed() time.Duration {
	if c.start.IsZero() {
		return 0
	}
	end := c.stopped
	if c.running {
		end = c.now()
	}
	if !c.pausedAt.IsZero() {
		end = c.pausedAt
	}
	if d := end.Sub(c.start) - c.paused; d > 0 {
		return d
	}
	return 0
}

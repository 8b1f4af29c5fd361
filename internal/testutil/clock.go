package testutil

import "sync"

// ManualClock is a settable wall clock for tests, in epoch milliseconds.
//
// It satisfies engine.WallClock. Time only moves when a test moves it, so
// windowed dampenings can be driven to exact boundaries.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type ManualClock struct {
	mu    sync.Mutex
	start int64
	now   int64
}

// NewManualClock creates a clock reading start.
func NewManualClock(start int64) *ManualClock {
	return &ManualClock{start: start, now: start}
}

// NowMillis returns the current time.
func (c *ManualClock) NowMillis() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t. Moving backwards is allowed; rounds for one key
// must still be delivered in non-decreasing time by the caller.
func (c *ManualClock) Set(t int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Advance moves the clock forward by d milliseconds and returns the new time.
func (c *ManualClock) Advance(d int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	return c.now
}

// Reset moves the clock back to its start time.
//
// Used for test reuse: the same scenario replays with identical times.
func (c *ManualClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}

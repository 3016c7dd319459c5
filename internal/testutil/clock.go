package testutil

import (
	"sync"
	"time"
)

// StepClock is a deterministic clock that advances by a fixed step on every
// call to Now.
//
// A device timing one read calls Now twice, so every read observes an
// elapsed time of exactly one step. This makes recorded statistics and
// rendered listings reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu    sync.Mutex
	base  time.Time
	step  time.Duration
	ticks int64
}

// NewStepClock creates a clock that starts at the Unix epoch and advances
// by step per call.
func NewStepClock(step time.Duration) *StepClock {
	return &StepClock{base: time.Unix(0, 0), step: step}
}

// Now returns the current reading and then advances the clock.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.base.Add(time.Duration(c.ticks) * c.step)
	c.ticks++
	return t
}

// Ticks returns how many times Now has been called.
func (c *StepClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// Reset rewinds the clock to its starting point.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks = 0
}

package testutil

import (
	"sync"
	"time"
)

// DeterministicClock is a thread-safe wall clock for tests that only moves
// when told to.
//
// Provenance notes and run ledger entries embed timestamps; tests use this
// clock so their output is byte-identical across runs.
type DeterministicClock struct {
	mu  sync.Mutex
	now time.Time
}

// Epoch is the default starting time of a DeterministicClock.
var Epoch = time.Date(2024, time.January, 2, 3, 4, 5, 0, time.UTC)

// NewDeterministicClock creates a clock reading Epoch.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{now: Epoch}
}

// Now returns the current reading. Suitable as a func() time.Time.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *DeterministicClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Reset returns the clock to Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
}

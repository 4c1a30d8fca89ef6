package common

import (
	"sync"
	"time"
)

// Week is the cadence on which controller weights and voting-escrow locks are
// aligned.
const Week uint64 = 7 * 86400

// Clock supplies the block timestamp, in unix seconds, used by the native
// engines. One second is the accrual granularity.
type Clock interface {
	Now() uint64
}

// SystemClock reads wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() uint64 {
	return uint64(time.Now().Unix())
}

// ManualClock is a deterministic clock advanced explicitly by tests and
// simulations.
type ManualClock struct {
	mu  sync.Mutex
	now uint64
}

// NewManualClock returns a clock frozen at the supplied timestamp.
func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by the supplied number of seconds.
func (c *ManualClock) Sleep(seconds uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
	return c.now
}

// Set moves the clock to an absolute timestamp. Moving backwards is ignored.
func (c *ManualClock) Set(ts uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.now {
		c.now = ts
	}
}

// WeekStart truncates a timestamp to the beginning of its week.
func WeekStart(ts uint64) uint64 {
	return ts / Week * Week
}

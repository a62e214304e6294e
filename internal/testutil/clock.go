package testutil

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Clock is a manual time source that advances one second per reading, so
// records created in sequence have distinct, ordered stamps.
type Clock struct {
	now time.Time
	mu  sync.Mutex
}

// NewClock creates a clock starting at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current reading and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(time.Second)
	return t
}

// NewIDs returns a generator of readable, increasing record ids.
func NewIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("id-%04d", n.Add(1))
	}
}

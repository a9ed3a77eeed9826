package core

import "sync"

// LogicalClock is a Lamport scalar clock, local to a single peer. Its
// value is monotonically non-decreasing for the lifetime of the peer:
// Tick increments it on every locally-initiated send, Observe merges in
// a remote timestamp on every message receipt.
//
// A LogicalClock is safe for concurrent use; callers composing it with
// other bookkeeping (the request queue, the ack watermarks) still take
// the protocol's own mutex around the compound operation, but the
// clock's own invariant never depends on that outer lock.
type LogicalClock struct {
	mu    sync.Mutex
	value int32
}

// NewLogicalClock returns a clock starting at zero.
func NewLogicalClock() *LogicalClock {
	return &LogicalClock{}
}

// Tick atomically increments the clock and returns the new value. Used
// before every locally-initiated send (REQ, ACK or REL).
func (c *LogicalClock) Tick() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value++
	return c.value
}

// Observe merges a remote timestamp into the clock: C <- max(C, ts) + 1.
// Must be invoked on every message receipt before any other processing
// of that message.
func (c *LogicalClock) Observe(ts int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts > c.value {
		c.value = ts
	}
	c.value++
}

// Peek returns the current value without mutating it. Used by the
// metrics exporter and by log lines; never used to stamp a message,
// since reading without ticking would let two callers observe and act
// on the same timestamp.
func (c *LogicalClock) Peek() int32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

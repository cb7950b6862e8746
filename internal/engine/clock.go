package engine

import "sync/atomic"

// Clock is a monotonic logical clock. Every run-log record is stamped with a
// sequence number from it; wall-clock timestamps are never used for
// ordering.
//
// Thread-safety: safe for concurrent use, though the single-writer main loop
// means only one goroutine normally calls Next.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number. Each call returns a unique,
// strictly increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number without advancing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}

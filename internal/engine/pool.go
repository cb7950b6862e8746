package engine

import (
	"fmt"

	"golang.org/x/sync/semaphore"
)

// Resources is a demand on (or capacity of) the shared resource pool.
// Quantities are slots, not percentages; the scheduler reserves whole slots
// for the lifetime of an invocation.
type Resources struct {
	CPU int64
	GPU int64
}

func (r Resources) String() string {
	if r.GPU == 0 {
		return fmt.Sprintf("cpu=%d", r.CPU)
	}
	return fmt.Sprintf("cpu=%d gpu=%d", r.CPU, r.GPU)
}

// Pool tracks slot availability for each resource kind. Reservation is
// all-or-nothing and non-blocking: an invocation whose demand cannot be met
// right now stays queued instead of holding partial resources.
type Pool struct {
	capacity Resources
	cpu      *semaphore.Weighted
	gpu      *semaphore.Weighted
}

// NewPool creates a pool with the given total capacity. Zero GPU capacity is
// the common case; demands on an absent resource are unsatisfiable.
func NewPool(capacity Resources) *Pool {
	return &Pool{
		capacity: capacity,
		cpu:      semaphore.NewWeighted(capacity.CPU),
		gpu:      semaphore.NewWeighted(capacity.GPU),
	}
}

// Capacity returns the pool's total capacity.
func (p *Pool) Capacity() Resources { return p.capacity }

// CanSatisfy reports whether the demand fits the pool's total capacity at
// all. A demand that exceeds capacity can never run, no matter how long it
// waits.
func (p *Pool) CanSatisfy(r Resources) bool {
	return r.CPU <= p.capacity.CPU && r.GPU <= p.capacity.GPU
}

// TryReserve attempts to reserve the demand without blocking. Either the
// whole demand is reserved or nothing is.
func (p *Pool) TryReserve(r Resources) bool {
	if r.CPU > 0 && !p.cpu.TryAcquire(r.CPU) {
		return false
	}
	if r.GPU > 0 && !p.gpu.TryAcquire(r.GPU) {
		if r.CPU > 0 {
			p.cpu.Release(r.CPU)
		}
		return false
	}
	return true
}

// Release returns a reservation to the pool.
func (p *Pool) Release(r Resources) {
	if r.CPU > 0 {
		p.cpu.Release(r.CPU)
	}
	if r.GPU > 0 {
		p.gpu.Release(r.GPU)
	}
}

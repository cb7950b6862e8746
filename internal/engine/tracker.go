package engine

import "github.com/betterbytes/harvest/internal/ir"

// ConflictTracker knows the claims of every in-flight invocation and answers
// the one question admission asks: does this claim overlap any of them?
//
// Owned by the main loop; not safe for concurrent use.
type ConflictTracker struct {
	inflight map[string]*ir.Claim // invocation token to claim
}

// NewConflictTracker creates an empty tracker.
func NewConflictTracker() *ConflictTracker {
	return &ConflictTracker{inflight: make(map[string]*ir.Claim)}
}

// Conflicts reports whether claim overlaps any in-flight claim.
func (t *ConflictTracker) Conflicts(claim *ir.Claim) bool {
	for _, held := range t.inflight {
		if claim.Overlaps(held) {
			return true
		}
	}
	return false
}

// Admit registers an invocation's claim as in-flight.
func (t *ConflictTracker) Admit(token string, claim *ir.Claim) {
	t.inflight[token] = claim
}

// Release drops an invocation's claim. Idempotent.
func (t *ConflictTracker) Release(token string) {
	delete(t.inflight, token)
}

// InFlight returns the number of claims currently held.
func (t *ConflictTracker) InFlight() int {
	return len(t.inflight)
}

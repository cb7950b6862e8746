package engine

import (
	"log/slog"

	"github.com/betterbytes/harvest/internal/ir"
)

// Scheduler holds the candidate queue and decides, each round, which
// candidates become running invocations.
//
// The queue order is the tie-break: seeds enter before any suggestion, later
// arrivals enter behind earlier ones, and a deferred candidate keeps its
// position. Admission therefore depends only on the queue and the snapshot,
// never on timing.
//
// Owned by the main loop; not safe for concurrent use.
type Scheduler struct {
	queue   []*Invocation
	tracker *ConflictTracker
	pool    *Pool
}

// NewScheduler creates a scheduler drawing reservations from pool.
func NewScheduler(pool *Pool) *Scheduler {
	return &Scheduler{
		tracker: NewConflictTracker(),
		pool:    pool,
	}
}

// Enqueue appends a candidate to the back of the queue.
func (s *Scheduler) Enqueue(inv *Invocation) {
	s.queue = append(s.queue, inv)
}

// Pending returns the number of queued candidates.
func (s *Scheduler) Pending() int { return len(s.queue) }

// PendingTools returns the tool names of the queued candidates in queue
// order, for stall reporting.
func (s *Scheduler) PendingTools() []string {
	names := make([]string, len(s.queue))
	for i, inv := range s.queue {
		names[i] = inv.Tool.Name()
	}
	return names
}

// Batch is the outcome of one admission round.
type Batch struct {
	// Admitted invocations hold a reservation and a registered claim; the
	// caller must launch each one and later call Release.
	Admitted []*Invocation
	// NotRunnable candidates declared they can never run and were dropped.
	NotRunnable []*Invocation
	// Unsatisfiable candidates demand more resources than the pool's total
	// capacity; they can never run and were dropped.
	Unsatisfiable []*Invocation
}

// NextBatch evaluates every queued candidate against snap, in queue order,
// and admits those whose claims are disjoint from all in-flight claims and
// whose resource demand can be reserved now. Candidates that defer, conflict,
// or miss a reservation stay queued in place.
func (s *Scheduler) NextBatch(snap *ir.Snapshot) Batch {
	var batch Batch
	retained := s.queue[:0]
	for _, inv := range s.queue {
		outcome := inv.Tool.MightWrite(EvalContext{Snapshot: snap, Args: inv.Args})
		switch outcome.kind {
		case outcomeNotRunnable:
			batch.NotRunnable = append(batch.NotRunnable, inv)
		case outcomeDefer:
			retained = append(retained, inv)
		case outcomeRunnable:
			if !s.pool.CanSatisfy(outcome.resources) {
				batch.Unsatisfiable = append(batch.Unsatisfiable, inv)
				continue
			}
			if s.tracker.Conflicts(outcome.claim) {
				slog.Debug("candidate conflicts with in-flight claim",
					"tool", inv.Tool.Name(),
					"invocation", inv.Token,
					"claim", outcome.claim,
				)
				retained = append(retained, inv)
				continue
			}
			if !s.pool.TryReserve(outcome.resources) {
				retained = append(retained, inv)
				continue
			}
			inv.claim = outcome.claim
			inv.resources = outcome.resources
			s.tracker.Admit(inv.Token, outcome.claim)
			batch.Admitted = append(batch.Admitted, inv)
		default:
			// A zero-value Outcome is a tool bug; treat it as never runnable
			// rather than wedging the queue.
			slog.Error("tool returned invalid outcome", "tool", inv.Tool.Name())
			batch.NotRunnable = append(batch.NotRunnable, inv)
		}
	}
	// Zero the tail so dropped candidates are not pinned by the backing array.
	for i := len(retained); i < len(s.queue); i++ {
		s.queue[i] = nil
	}
	s.queue = retained
	return batch
}

// Release returns an admitted invocation's claim and reservation, making room
// for conflicting or resource-starved candidates in the next round.
func (s *Scheduler) Release(inv *Invocation) {
	s.tracker.Release(inv.Token)
	s.pool.Release(inv.resources)
}

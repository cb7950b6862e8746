package ir

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Store holds the versioned IR graph and produces immutable snapshots.
//
// Reading is wait-free in practice: Snapshot returns the current immutable
// view under a read lock held only for the pointer copy. Writers are
// serialized by the commit path, which performs the stale-base check, the
// claim-subset check, and the append atomically.
//
// The Store is safe for concurrent use, but the orchestration core funnels
// all commits through the single-threaded main loop; concurrency safety here
// is defense for tools allocating IDs mid-run.
type Store struct {
	mu      sync.RWMutex
	current *Snapshot

	// Revision that last modified each live or removed ID. Drives the
	// lost-update check in Commit.
	lastWrite map[ID]Revision

	nextID atomic.Uint64
}

// NewStore creates a store holding the empty revision 0.
func NewStore() *Store {
	return &Store{
		current:   &Snapshot{revision: 0, reprs: map[ID]Representation{}},
		lastWrite: make(map[ID]Revision),
	}
}

// Snapshot returns the current immutable view. O(1); never blocks behind a
// committing writer for longer than the snapshot pointer swap.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Revision returns the current revision number.
func (s *Store) Revision() Revision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.revision
}

// allocateID returns a fresh ID. IDs are strictly increasing in allocation
// order and never reused.
func (s *Store) allocateID() ID {
	return ID(s.nextID.Add(1))
}

// BeginEdit opens an edit against the given base revision, scoped to claim.
//
// Fails with StaleBaseError if base is not the current revision: an edit
// must be computed against the latest snapshot its tool actually read, or
// intervening writes could be silently discarded. Fails with UnknownIDError
// if the claim names an ID absent from the base snapshot; that indicates a
// broken might-write evaluation in the tool.
func (s *Store) BeginEdit(base Revision, claim *Claim) (*Edit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if base != s.current.revision {
		return nil, &StaleBaseError{Base: base, Current: s.current.revision}
	}
	for _, id := range claim.IDs() {
		if !s.current.Contains(id) {
			return nil, &UnknownIDError{ID: id}
		}
	}
	return &Edit{
		store: s,
		base:  base,
		claim: claim,
		added: make(map[ID]struct{}),
	}, nil
}

// Commit validates the edit and applies its operations atomically, producing
// the next revision.
//
// Validation, in order:
//   - the edit has not been committed before
//   - every touched existing ID lies inside the edit's claim, and new
//     allocations are covered by the claim's marker (ClaimViolationError)
//   - no touched ID was modified after the edit's base revision
//     (StaleBaseError), the lost-update check; edits with disjoint touched
//     sets commute, so completion order of non-conflicting invocations does
//     not matter
//   - replace and remove targets exist in the current graph (UnknownIDError)
//
// On any failure nothing is applied and the revision is unchanged.
func (s *Store) Commit(e *Edit) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.committed {
		return nil, fmt.Errorf("edit already committed at revision %d", e.base)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}

	var stale []ID
	for _, id := range e.touchedExisting() {
		if s.lastWrite[id] > e.base {
			stale = append(stale, id)
		}
	}
	if len(stale) > 0 {
		return nil, &StaleBaseError{Base: e.base, Current: s.current.revision, IDs: stale}
	}
	for _, o := range e.ops {
		if o.kind == opAdd {
			continue
		}
		if !s.current.Contains(o.id) {
			return nil, &UnknownIDError{ID: o.id}
		}
	}

	next := &Snapshot{
		revision: s.current.revision + 1,
		reprs:    make(map[ID]Representation, len(s.current.reprs)+len(e.added)),
	}
	for id, r := range s.current.reprs {
		next.reprs[id] = r
	}
	for _, o := range e.ops {
		switch o.kind {
		case opAdd, opReplace:
			next.reprs[o.id] = o.repr
		case opRemove:
			delete(next.reprs, o.id)
		}
	}
	for _, id := range e.Touched() {
		s.lastWrite[id] = next.revision
	}
	e.committed = true
	s.current = next
	return next, nil
}

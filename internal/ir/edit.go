package ir

import (
	"fmt"
	"sort"
)

type opKind int

const (
	opAdd opKind = iota + 1
	opReplace
	opRemove
)

type op struct {
	kind opKind
	id   ID
	repr Representation // nil for opRemove
}

// Edit is the atomic set of operations produced by exactly one tool
// invocation: add representation, replace representation at ID, remove
// representation. It is begun against a specific base revision via
// Store.BeginEdit and applied via Store.Commit.
//
// An Edit records operations without touching the store; nothing is visible
// to other readers until Commit succeeds. The IDs an edit touches must end
// up a subset of the claim it was begun with, which Commit enforces.
//
// Not safe for concurrent use: exactly one invocation owns each edit.
type Edit struct {
	store     *Store
	base      Revision
	claim     *Claim
	ops       []op
	added     map[ID]struct{}
	committed bool
}

// Base returns the revision this edit was begun against.
func (e *Edit) Base() Revision { return e.base }

// Claim returns the write-set this edit was begun with.
func (e *Edit) Claim() *Claim { return e.claim }

// Add stores a representation under a freshly allocated ID and returns the
// ID. Allocation is centralized in the Store, so concurrently running tools
// never collide even before their edits commit.
func (e *Edit) Add(r Representation) ID {
	id := e.store.allocateID()
	e.ops = append(e.ops, op{kind: opAdd, id: id, repr: r})
	e.added[id] = struct{}{}
	return id
}

// Replace records a replacement of the representation under id.
func (e *Edit) Replace(id ID, r Representation) {
	e.ops = append(e.ops, op{kind: opReplace, id: id, repr: r})
}

// Remove records removal of the representation under id.
func (e *Edit) Remove(id ID) {
	e.ops = append(e.ops, op{kind: opRemove, id: id})
}

// Empty reports whether the edit records no operations.
func (e *Edit) Empty() bool { return len(e.ops) == 0 }

// Touched returns every ID the edit writes, in ascending order. Newly added
// IDs are included.
func (e *Edit) Touched() []ID {
	seen := make(map[ID]struct{}, len(e.ops))
	for _, o := range e.ops {
		seen[o.id] = struct{}{}
	}
	ids := make([]ID, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// touchedExisting returns the touched IDs that were not allocated by this
// edit, i.e. the ones the claim must cover.
func (e *Edit) touchedExisting() []ID {
	var ids []ID
	for _, id := range e.Touched() {
		if _, ok := e.added[id]; !ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// validate checks the claim contract without applying anything.
func (e *Edit) validate() error {
	var outside []ID
	for _, id := range e.touchedExisting() {
		if !e.claim.Contains(id) {
			outside = append(outside, id)
		}
	}
	if len(outside) > 0 {
		return &ClaimViolationError{Claim: e.claim, IDs: outside}
	}
	if len(e.added) > 0 && !e.claim.AllocatesNew() {
		added := make([]ID, 0, len(e.added))
		for id := range e.added {
			added = append(added, id)
		}
		sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
		return &ClaimViolationError{Claim: e.claim, IDs: added}
	}
	for _, o := range e.ops {
		if o.kind != opRemove && o.repr == nil {
			return fmt.Errorf("nil representation for id %s", o.id)
		}
	}
	return nil
}

package ir

import (
	"fmt"
	"sort"
	"strings"
)

// Snapshot is an immutable, numbered view of the IR graph. Snapshots are
// cheap to hold and safe to read from any goroutine; the Store produces a
// fresh one per committed edit and never mutates an existing one.
type Snapshot struct {
	revision Revision
	reprs    map[ID]Representation
}

// Revision returns the snapshot's revision number.
func (s *Snapshot) Revision() Revision { return s.revision }

// Get returns the representation stored under id.
func (s *Snapshot) Get(id ID) (Representation, bool) {
	r, ok := s.reprs[id]
	return r, ok
}

// Contains reports whether id is present in this snapshot.
func (s *Snapshot) Contains(id ID) bool {
	_, ok := s.reprs[id]
	return ok
}

// Len returns the number of representations in the snapshot.
func (s *Snapshot) Len() int { return len(s.reprs) }

// IDs returns every ID in the snapshot in ascending allocation order.
func (s *Snapshot) IDs() []ID {
	ids := make([]ID, 0, len(s.reprs))
	for id := range s.reprs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ByName returns the IDs of every representation whose kind matches name,
// in ascending order. Tools use this to find their inputs without knowing
// payload types.
func (s *Snapshot) ByName(name string) []ID {
	var ids []ID
	for id, r := range s.reprs {
		if r.Name() == name {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// String renders the snapshot as one "ID: kind" line per representation,
// in ID order. This is the index format persisted by diagnostics.
func (s *Snapshot) String() string {
	var b strings.Builder
	for _, id := range s.IDs() {
		fmt.Fprintf(&b, "%s: %s\n", id, s.reprs[id].Name())
	}
	return b.String()
}

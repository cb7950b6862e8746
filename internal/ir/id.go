package ir

import "fmt"

// ID refers to a particular representation instance in the IR.
//
// IDs are allocated by the Store in strictly increasing order and are never
// reused within a run. The zero value is not a valid ID, which keeps
// "missing" distinguishable from "first".
type ID uint64

// InvalidID is the zero ID. No representation is ever stored under it.
const InvalidID ID = 0

// Valid reports whether the ID could have been allocated by a Store.
func (id ID) Valid() bool {
	return id != InvalidID
}

// String formats the ID as a zero-padded decimal, e.g. "0007".
// This form is used for diagnostics file names, so it must sort
// lexicographically in allocation order for the first 9999 IDs.
func (id ID) String() string {
	return fmt.Sprintf("%04d", uint64(id))
}

// Revision numbers snapshots of the IR. Revision 0 is the empty IR that
// exists before any edit has been committed.
type Revision uint64

// String formats the revision as a zero-padded decimal, matching the
// ir/NNNN diagnostics directory layout.
func (r Revision) String() string {
	return fmt.Sprintf("%04d", uint64(r))
}

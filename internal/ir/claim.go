package ir

import (
	"sort"
	"strings"
)

// Claim is the write-set a tool declares before running: the existing IDs it
// may replace or remove, plus an optional marker for "will allocate new IDs".
//
// Claims are declared at evaluation time and fixed for the invocation's
// lifetime. They exist purely for conflict exclusion; write access is
// enforced separately at commit time.
//
// The marker never conflicts with anything: new IDs are centrally allocated
// by the Store, so two allocating tools cannot collide.
type Claim struct {
	ids          map[ID]struct{}
	allocatesNew bool
}

// NewClaim builds a claim over the given existing IDs.
func NewClaim(ids ...ID) *Claim {
	c := &Claim{ids: make(map[ID]struct{}, len(ids))}
	for _, id := range ids {
		c.ids[id] = struct{}{}
	}
	return c
}

// WithNewAllocations marks the claim as allocating new IDs and returns it,
// for construction chaining: NewClaim().WithNewAllocations().
func (c *Claim) WithNewAllocations() *Claim {
	c.allocatesNew = true
	return c
}

// Contains reports whether id is part of the claimed write-set.
func (c *Claim) Contains(id ID) bool {
	_, ok := c.ids[id]
	return ok
}

// AllocatesNew reports whether the claim carries the new-allocation marker.
func (c *Claim) AllocatesNew() bool { return c.allocatesNew }

// IDs returns the claimed existing IDs in ascending order.
func (c *Claim) IDs() []ID {
	ids := make([]ID, 0, len(c.ids))
	for id := range c.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Overlaps reports whether the two claims share any existing ID. Allocation
// markers never overlap.
func (c *Claim) Overlaps(other *Claim) bool {
	a, b := c, other
	if len(b.ids) < len(a.ids) {
		a, b = b, a
	}
	for id := range a.ids {
		if _, ok := b.ids[id]; ok {
			return true
		}
	}
	return false
}

// String renders the claim for logs and rationale records, e.g. "{0002,0005}+new".
func (c *Claim) String() string {
	var b strings.Builder
	b.WriteByte('{')
	for i, id := range c.IDs() {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(id.String())
	}
	b.WriteByte('}')
	if c.allocatesNew {
		b.WriteString("+new")
	}
	return b.String()
}

package ir

import (
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// addText commits a single-add edit and returns the new ID and snapshot.
func addText(t *testing.T, s *Store, kind, body string) (ID, *Snapshot) {
	t.Helper()
	edit, err := s.BeginEdit(s.Revision(), NewClaim().WithNewAllocations())
	require.NoError(t, err)
	id := edit.Add(NewText(kind, body))
	snap, err := s.Commit(edit)
	require.NoError(t, err)
	return id, snap
}

func TestStore_EmptyRevisionZero(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	assert.Equal(t, Revision(0), snap.Revision())
	assert.Equal(t, 0, snap.Len())
}

func TestStore_CommitIncrementsRevisionByOne(t *testing.T) {
	s := NewStore()
	for want := Revision(1); want <= 5; want++ {
		_, snap := addText(t, s, "note", "body")
		assert.Equal(t, want, snap.Revision())
		assert.Equal(t, want, s.Revision())
	}
}

func TestStore_IDsStrictlyIncreasing(t *testing.T) {
	s := NewStore()
	var ids []ID
	for i := 0; i < 4; i++ {
		id, _ := addText(t, s, "note", "body")
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		assert.Greater(t, ids[i], ids[i-1])
	}
}

func TestStore_SnapshotsImmutable(t *testing.T) {
	s := NewStore()
	id, first := addText(t, s, "note", "v1")

	edit, err := s.BeginEdit(s.Revision(), NewClaim(id))
	require.NoError(t, err)
	edit.Replace(id, NewText("note", "v2"))
	second, err := s.Commit(edit)
	require.NoError(t, err)

	r1, ok := first.Get(id)
	require.True(t, ok)
	assert.Equal(t, "v1", r1.String())
	r2, ok := second.Get(id)
	require.True(t, ok)
	assert.Equal(t, "v2", r2.String())
}

func TestStore_BeginEditStaleBase(t *testing.T) {
	s := NewStore()
	addText(t, s, "note", "body")

	_, err := s.BeginEdit(0, NewClaim())
	require.Error(t, err)
	assert.True(t, IsStaleBase(err))
}

func TestStore_BeginEditUnknownClaimID(t *testing.T) {
	s := NewStore()
	_, err := s.BeginEdit(0, NewClaim(ID(42)))
	require.Error(t, err)
	assert.True(t, IsUnknownID(err))
}

func TestStore_ClaimViolationRejected(t *testing.T) {
	s := NewStore()
	a, _ := addText(t, s, "note", "a")
	b, _ := addText(t, s, "note", "b")

	// Claim covers only a, edit also touches b.
	edit, err := s.BeginEdit(s.Revision(), NewClaim(a))
	require.NoError(t, err)
	edit.Replace(a, NewText("note", "a2"))
	edit.Replace(b, NewText("note", "b2"))

	before := s.Revision()
	_, err = s.Commit(edit)
	require.Error(t, err)
	assert.True(t, IsClaimViolation(err))
	assert.Equal(t, before, s.Revision(), "failed commit must not change the revision")

	got, ok := s.Snapshot().Get(b)
	require.True(t, ok)
	assert.Equal(t, "b", got.String(), "failed commit must not be partially applied")
}

func TestStore_AllocationRequiresMarker(t *testing.T) {
	s := NewStore()
	a, _ := addText(t, s, "note", "a")

	edit, err := s.BeginEdit(s.Revision(), NewClaim(a))
	require.NoError(t, err)
	edit.Add(NewText("note", "new"))

	_, err = s.Commit(edit)
	require.Error(t, err)
	assert.True(t, IsClaimViolation(err))
}

func TestStore_StaleCommitRejected(t *testing.T) {
	s := NewStore()
	a, _ := addText(t, s, "note", "a")

	// Both edits begin against the same base and touch the same ID.
	base := s.Revision()
	first, err := s.BeginEdit(base, NewClaim(a))
	require.NoError(t, err)
	second, err := s.BeginEdit(base, NewClaim(a))
	require.NoError(t, err)

	first.Replace(a, NewText("note", "first"))
	_, err = s.Commit(first)
	require.NoError(t, err)

	second.Replace(a, NewText("note", "second"))
	before := s.Revision()
	_, err = s.Commit(second)
	require.Error(t, err)
	assert.True(t, IsStaleBase(err))
	assert.Equal(t, before, s.Revision())

	got, ok := s.Snapshot().Get(a)
	require.True(t, ok)
	assert.Equal(t, "first", got.String(), "intervening write must not be discarded")
}

func TestStore_DisjointEditsCommute(t *testing.T) {
	s := NewStore()
	a, _ := addText(t, s, "note", "a")
	b, _ := addText(t, s, "note", "b")

	base := s.Revision()
	editA, err := s.BeginEdit(base, NewClaim(a))
	require.NoError(t, err)
	editB, err := s.BeginEdit(base, NewClaim(b))
	require.NoError(t, err)
	editA.Replace(a, NewText("note", "a2"))
	editB.Replace(b, NewText("note", "b2"))

	// Commit in the opposite order from admission; both must apply.
	_, err = s.Commit(editB)
	require.NoError(t, err)
	_, err = s.Commit(editA)
	require.NoError(t, err)

	snap := s.Snapshot()
	gotA, _ := snap.Get(a)
	gotB, _ := snap.Get(b)
	assert.Equal(t, "a2", gotA.String())
	assert.Equal(t, "b2", gotB.String())
	assert.Equal(t, base+2, snap.Revision())
}

func TestStore_RemoveAndReplace(t *testing.T) {
	s := NewStore()
	a, _ := addText(t, s, "note", "a")
	b, _ := addText(t, s, "note", "b")

	edit, err := s.BeginEdit(s.Revision(), NewClaim(a, b).WithNewAllocations())
	require.NoError(t, err)
	edit.Remove(a)
	edit.Replace(b, NewText("note", "b2"))
	c := edit.Add(NewText("note", "c"))
	snap, err := s.Commit(edit)
	require.NoError(t, err)

	assert.False(t, snap.Contains(a))
	gotB, _ := snap.Get(b)
	assert.Equal(t, "b2", gotB.String())
	gotC, _ := snap.Get(c)
	assert.Equal(t, "c", gotC.String())
}

func TestStore_DoubleCommitRejected(t *testing.T) {
	s := NewStore()
	edit, err := s.BeginEdit(0, NewClaim().WithNewAllocations())
	require.NoError(t, err)
	edit.Add(NewText("note", "body"))
	_, err = s.Commit(edit)
	require.NoError(t, err)
	_, err = s.Commit(edit)
	require.Error(t, err)
}

func TestStore_ConcurrentAllocationUnique(t *testing.T) {
	s := NewStore()
	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	var all []ID
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]ID, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, s.allocateID())
			}
			mu.Lock()
			all = append(all, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	for i := 1; i < len(all); i++ {
		require.NotEqual(t, all[i-1], all[i], "duplicate ID allocated")
	}
}

func TestSnapshot_ByName(t *testing.T) {
	s := NewStore()
	a, _ := addText(t, s, "report", "one")
	addText(t, s, "note", "two")
	b, _ := addText(t, s, "report", "three")

	got := s.Snapshot().ByName("report")
	assert.Equal(t, []ID{a, b}, got)
	assert.Empty(t, s.Snapshot().ByName("missing"))
}

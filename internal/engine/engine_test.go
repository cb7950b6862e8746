package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterbytes/harvest/internal/diag"
	"github.com/betterbytes/harvest/internal/ir"
	"github.com/betterbytes/harvest/internal/runlog"
)

// testTool implements Tool with pluggable behavior.
type testTool struct {
	name string
	eval func(ec EvalContext) Outcome
	run  func(ctx context.Context, rc RunContext) error
}

func (t *testTool) Name() string { return t.name }

func (t *testTool) MightWrite(ec EvalContext) Outcome { return t.eval(ec) }
func (t *testTool) Run(ctx context.Context, rc RunContext) error {
	if t.run == nil {
		return nil
	}
	return t.run(ctx, rc)
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *ir.Store, *runlog.Log) {
	t.Helper()
	store := ir.NewStore()
	collector, err := diag.NewCollector("")
	require.NoError(t, err)
	t.Cleanup(func() { collector.Close() })
	log, err := runlog.Open(filepath.Join(t.TempDir(), "run.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	opts = append([]Option{WithCapacity(Resources{CPU: 4})}, opts...)
	return New(store, collector, log, opts...), store, log
}

func seedStore(t *testing.T, store *ir.Store, kinds ...string) []ir.ID {
	t.Helper()
	edit, err := store.BeginEdit(store.Revision(), ir.NewClaim().WithNewAllocations())
	require.NoError(t, err)
	ids := make([]ir.ID, len(kinds))
	for i, k := range kinds {
		ids[i] = edit.Add(ir.NewText(k, k+" body"))
	}
	_, err = store.Commit(edit)
	require.NoError(t, err)
	return ids
}

func TestRun_DisjointClaimsCommute(t *testing.T) {
	e, store, log := newTestEngine(t)
	ids := seedStore(t, store, "left", "right")

	replace := func(id ir.ID, kind string) *testTool {
		return &testTool{
			name: "write_" + kind,
			eval: func(EvalContext) Outcome { return Runnable(ir.NewClaim(id)) },
			run: func(_ context.Context, rc RunContext) error {
				rc.Edit.Replace(id, ir.NewText(kind, kind+" rewritten"))
				return nil
			},
		}
	}
	wide := &testTool{
		name: "write_both",
		eval: func(EvalContext) Outcome { return Runnable(ir.NewClaim(ids...)) },
		run: func(_ context.Context, rc RunContext) error {
			rc.Edit.Replace(ids[0], ir.NewText("left", "merged"))
			rc.Edit.Replace(ids[1], ir.NewText("right", "merged"))
			return nil
		},
	}
	e.Register(replace(ids[0], "left"), replace(ids[1], "right"), wide)
	require.NoError(t, e.Seed("write_left", nil))
	require.NoError(t, e.Seed("write_right", nil))
	require.NoError(t, e.Seed("write_both", nil))

	require.NoError(t, e.Run(context.Background()))

	// Three commits on top of the seeded revision. The overlapping candidate
	// cannot be admitted while either narrow claim is in flight, so its edit
	// commits last.
	assert.Equal(t, ir.Revision(4), store.Revision())
	steps, err := log.Steps(context.Background())
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, "write_both", steps[2].Tool)
	assert.Equal(t, uint64(4), steps[2].EndRevision)

	snap := store.Snapshot()
	for _, id := range ids {
		repr, ok := snap.Get(id)
		require.True(t, ok)
		assert.Contains(t, repr.String(), "merged")
	}
}

func TestRun_ClaimViolationContained(t *testing.T) {
	e, store, log := newTestEngine(t, WithTokenGenerator(NewFixedGenerator("tok-rogue")))
	ids := seedStore(t, store, "claimed", "unclaimed")

	rogue := &testTool{
		name: "rogue",
		eval: func(EvalContext) Outcome { return Runnable(ir.NewClaim(ids[0])) },
		run: func(_ context.Context, rc RunContext) error {
			rc.Edit.Replace(ids[1], ir.NewText("unclaimed", "overwritten"))
			return nil
		},
	}
	e.Register(rogue)
	require.NoError(t, e.Seed("rogue", nil))

	require.NoError(t, e.Run(context.Background()))

	// The edit was rejected at commit: no new revision, no step record, and
	// the invocation ends failed.
	assert.Equal(t, ir.Revision(1), store.Revision())
	steps, err := log.Steps(context.Background())
	require.NoError(t, err)
	assert.Empty(t, steps)

	history, err := log.History(context.Background(), "tok-rogue")
	require.NoError(t, err)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, "failed", last.State)
	assert.Contains(t, last.Detail, "claim")
}

func TestRun_DeferUntilInputExists(t *testing.T) {
	e, store, log := newTestEngine(t)

	load := &testTool{
		name: "load",
		eval: func(ec EvalContext) Outcome {
			if len(ec.Snapshot.ByName("source")) > 0 {
				return NotRunnable()
			}
			return Runnable(ir.NewClaim().WithNewAllocations())
		},
		run: func(_ context.Context, rc RunContext) error {
			rc.Edit.Add(ir.NewText("source", "int main() {}"))
			rc.Suggest("check", nil)
			return nil
		},
	}
	check := &testTool{
		name: "check",
		eval: func(ec EvalContext) Outcome {
			if len(ec.Snapshot.ByName("source")) == 0 {
				return Defer()
			}
			return Runnable(ir.NewClaim())
		},
		run: func(_ context.Context, rc RunContext) error {
			rc.Report.Message("source present")
			return nil
		},
	}
	e.Register(load, check)
	// The deferring candidate is queued first to force at least one deferral.
	require.NoError(t, e.Seed("check", nil))
	require.NoError(t, e.Seed("load", nil))

	require.NoError(t, e.Run(context.Background()))

	// load commits, then the seeded check and the suggested check each commit.
	assert.Equal(t, ir.Revision(3), store.Revision())
	invs, err := log.Invocations(context.Background())
	require.NoError(t, err)
	require.Len(t, invs, 3)
	assert.Equal(t, runlog.ProvenanceSuggestion, invs[2].Provenance)
	assert.Equal(t, invs[1].Token, invs[2].ParentToken)
	// Same tool, same args: the re-suggested work is correlatable.
	assert.Equal(t, invs[0].Fingerprint, invs[2].Fingerprint)
}

func TestRun_PanicContained(t *testing.T) {
	diagDir := filepath.Join(t.TempDir(), "diag")
	store := ir.NewStore()
	collector, err := diag.NewCollector(diagDir)
	require.NoError(t, err)
	t.Cleanup(func() { collector.Close() })
	log, err := runlog.Open(filepath.Join(t.TempDir(), "run.db"))
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })
	e := New(store, collector, log,
		WithCapacity(Resources{CPU: 2}),
		WithTokenGenerator(NewFixedGenerator("tok-bomb", "tok-safe")),
	)

	bomb := &testTool{
		name: "bomb",
		eval: func(EvalContext) Outcome { return Runnable(ir.NewClaim().WithNewAllocations()) },
		run: func(context.Context, RunContext) error {
			panic("kaboom")
		},
	}
	safe := &testTool{
		name: "safe",
		eval: func(EvalContext) Outcome { return Runnable(ir.NewClaim().WithNewAllocations()) },
		run: func(_ context.Context, rc RunContext) error {
			rc.Edit.Add(ir.NewText("note", "still here"))
			return nil
		},
	}
	e.Register(bomb, safe)
	require.NoError(t, e.Seed("bomb", nil))
	require.NoError(t, e.Seed("safe", nil))

	require.NoError(t, e.Run(context.Background()))

	// The panic is contained: the other invocation still commits.
	assert.Equal(t, ir.Revision(1), store.Revision())
	history, err := log.History(context.Background(), "tok-bomb")
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, "failed", last.State)
	assert.Contains(t, last.Detail, "panicked")

	// The failure record survives under its tool and token.
	_, err = os.Stat(filepath.Join(diagDir, "steps", "failed-bomb-tok-bomb"))
	assert.NoError(t, err)
}

func TestRun_StallWhenNothingCanRun(t *testing.T) {
	e, _, _ := newTestEngine(t)
	stuck := &testTool{
		name: "stuck",
		eval: func(EvalContext) Outcome { return Defer() },
	}
	e.Register(stuck)
	require.NoError(t, e.Seed("stuck", nil))

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsStall(err))
	var se *StallError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"stuck"}, se.Remaining)
}

func TestRun_QuotaBoundsSuggestionGrowth(t *testing.T) {
	e, _, _ := newTestEngine(t, WithQuota(3))
	breeder := &testTool{
		name: "breeder",
		eval: func(EvalContext) Outcome { return Runnable(ir.NewClaim()) },
		run: func(_ context.Context, rc RunContext) error {
			rc.Suggest("breeder", nil)
			return nil
		},
	}
	e.Register(breeder)
	require.NoError(t, e.Seed("breeder", nil))

	err := e.Run(context.Background())
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
}

func TestRun_NotRunnableDropped(t *testing.T) {
	e, store, log := newTestEngine(t, WithTokenGenerator(NewFixedGenerator("tok-never")))
	never := &testTool{
		name: "never",
		eval: func(EvalContext) Outcome { return NotRunnable() },
	}
	e.Register(never)
	require.NoError(t, e.Seed("never", nil))

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, ir.Revision(0), store.Revision())

	history, err := log.History(context.Background(), "tok-never")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "queued", history[0].State)
	assert.Equal(t, "not_runnable", history[1].State)
}

func TestRun_UnsatisfiableDemandFails(t *testing.T) {
	e, store, log := newTestEngine(t,
		WithCapacity(Resources{CPU: 1}),
		WithTokenGenerator(NewFixedGenerator("tok-greedy")),
	)
	greedy := &testTool{
		name: "greedy",
		eval: func(EvalContext) Outcome {
			return Runnable(ir.NewClaim()).WithResources(Resources{CPU: 16})
		},
	}
	e.Register(greedy)
	require.NoError(t, e.Seed("greedy", nil))

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, ir.Revision(0), store.Revision())

	history, err := log.History(context.Background(), "tok-greedy")
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, "failed", last.State)
	assert.Contains(t, last.Detail, "capacity")
}

func TestRun_CapacityLimitsConcurrency(t *testing.T) {
	e, store, _ := newTestEngine(t, WithCapacity(Resources{CPU: 1}))
	running := make(chan struct{}, 2)
	worker := func(name string) *testTool {
		return &testTool{
			name: name,
			eval: func(EvalContext) Outcome { return Runnable(ir.NewClaim().WithNewAllocations()) },
			run: func(_ context.Context, rc RunContext) error {
				select {
				case running <- struct{}{}:
				default:
					t.Error("two invocations running with one CPU slot")
				}
				rc.Edit.Add(ir.NewText("out", name))
				<-running
				return nil
			},
		}
	}
	e.Register(worker("w1"), worker("w2"))
	require.NoError(t, e.Seed("w1", nil))
	require.NoError(t, e.Seed("w2", nil))

	require.NoError(t, e.Run(context.Background()))
	assert.Equal(t, ir.Revision(2), store.Revision())
}

func TestRun_ContextCancellation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	blocker := &testTool{
		name: "blocker",
		eval: func(EvalContext) Outcome { return Runnable(ir.NewClaim()) },
		run: func(ctx context.Context, _ RunContext) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	e.Register(blocker)
	require.NoError(t, e.Seed("blocker", nil))

	cancel()
	err := e.Run(ctx)
	require.Error(t, err)
}

func TestSeed_UnknownTool(t *testing.T) {
	e, _, _ := newTestEngine(t)
	err := e.Seed("nonexistent", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

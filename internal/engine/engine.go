package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/betterbytes/harvest/internal/diag"
	"github.com/betterbytes/harvest/internal/ir"
	"github.com/betterbytes/harvest/internal/runlog"
)

// DefaultQuota bounds the number of invocations a run may create when the
// caller does not configure one.
const DefaultQuota = 1000

// Engine drives the pipeline: it owns the store, the scheduler, the runner,
// and the diagnostics and run-log sinks, and its Run method is the
// single-writer main loop.
type Engine struct {
	store     *ir.Store
	collector *diag.Collector
	log       *runlog.Log

	tools map[string]Tool
	seeds []suggestion

	capacity Resources
	quota    int
	tokens   TokenGenerator
	clock    *Clock

	sched  *Scheduler
	runner *Runner

	created int
	failed  int
	round   int
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenGenerator replaces the UUIDv7 token generator, for tests that need
// stable tokens.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithQuota sets the invocation quota. Zero disables the quota.
func WithQuota(n int) Option {
	return func(e *Engine) { e.quota = n }
}

// WithCapacity sets the resource pool capacity. The default is one CPU slot
// per logical CPU and no GPU slots.
func WithCapacity(r Resources) Option {
	return func(e *Engine) { e.capacity = r }
}

// New creates an engine over the given store, diagnostics collector, and run
// log. Tools must be registered before Run.
func New(store *ir.Store, collector *diag.Collector, log *runlog.Log, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		collector: collector,
		log:       log,
		tools:     make(map[string]Tool),
		capacity:  Resources{CPU: int64(runtime.NumCPU())},
		quota:     DefaultQuota,
		tokens:    UUIDv7Generator{},
		clock:     NewClock(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sched = NewScheduler(NewPool(e.capacity))
	e.runner = NewRunner()
	return e
}

// Register makes tools available for seeding and suggestion. Registering two
// tools with the same name is a programming error.
func (e *Engine) Register(tools ...Tool) {
	for _, t := range tools {
		if _, dup := e.tools[t.Name()]; dup {
			panic(fmt.Sprintf("tool %s registered twice", t.Name()))
		}
		e.tools[t.Name()] = t
	}
}

// Seed queues an initial invocation of the named tool. Seeds enter the
// candidate queue before any suggestion, in Seed call order.
func (e *Engine) Seed(tool string, args map[string]any) error {
	if _, ok := e.tools[tool]; !ok {
		return fmt.Errorf("seed: unknown tool %q", tool)
	}
	e.seeds = append(e.seeds, suggestion{tool: tool, args: args})
	return nil
}

// Run executes the pipeline to fixpoint: rounds of admission and completion
// until no candidate remains and nothing is running.
//
// Tool failures are contained and do not abort the run. Run returns an error
// for a stalled queue, an exhausted quota, context cancellation, or a broken
// diagnostics/run-log sink.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.collector.ReportSnapshot(e.store.Snapshot()); err != nil {
		return err
	}
	for _, s := range e.seeds {
		if err := e.spawn(ctx, s.tool, s.args, runlog.ProvenanceSeed, ""); err != nil {
			return err
		}
	}
	e.seeds = nil

	for {
		e.round++
		snap := e.store.Snapshot()
		batch := e.sched.NextBatch(snap)
		for _, inv := range batch.NotRunnable {
			e.transition(ctx, inv, StateNotRunnable, "")
			slog.Info("candidate can never run, dropped",
				"tool", inv.Tool.Name(), "invocation", inv.Token)
		}
		for _, inv := range batch.Unsatisfiable {
			detail := fmt.Sprintf("resource demand exceeds pool capacity %s", e.sched.pool.Capacity())
			e.failed++
			e.transition(ctx, inv, StateFailed, detail)
			slog.Error("candidate demands more resources than exist",
				"tool", inv.Tool.Name(), "invocation", inv.Token)
		}
		for _, inv := range batch.Admitted {
			if err := e.launch(ctx, inv, snap); err != nil {
				e.sched.Release(inv)
				e.failed++
				e.transition(ctx, inv, StateFailed, err.Error())
				slog.Error("failed to launch invocation",
					"tool", inv.Tool.Name(), "invocation", inv.Token, "error", err)
			}
		}

		if e.runner.Running() == 0 {
			if e.sched.Pending() == 0 {
				slog.Info("pipeline reached fixpoint",
					"revision", e.store.Revision(),
					"rounds", e.round,
					"invocations", e.created,
					"failed", e.failed,
				)
				return nil
			}
			return &StallError{Remaining: e.sched.PendingTools()}
		}

		comp, err := e.runner.Wait(ctx)
		if err != nil {
			return err
		}
		if err := e.handle(ctx, comp); err != nil {
			return err
		}
		for {
			comp, ok := e.runner.TryNext()
			if !ok {
				break
			}
			if err := e.handle(ctx, comp); err != nil {
				return err
			}
		}
	}
}

// spawn creates an invocation record and enqueues it as a candidate.
func (e *Engine) spawn(ctx context.Context, tool string, args map[string]any, provenance, parent string) error {
	t, ok := e.tools[tool]
	if !ok {
		return fmt.Errorf("spawn: unknown tool %q", tool)
	}
	e.created++
	if e.quota > 0 && e.created > e.quota {
		return &QuotaExceededError{Created: e.created, Limit: e.quota}
	}
	fp, err := ir.InvocationFingerprint(tool, args)
	if err != nil {
		return fmt.Errorf("spawn %s: %w", tool, err)
	}
	inv := &Invocation{
		Token:       e.tokens.Generate(),
		Tool:        t,
		Args:        args,
		Fingerprint: fp,
		Provenance:  provenance,
		Parent:      parent,
		state:       StateQueued,
	}
	if err := e.log.RecordInvocation(ctx, runlog.Invocation{
		Token:       inv.Token,
		Tool:        tool,
		Fingerprint: fp,
		Provenance:  provenance,
		ParentToken: parent,
		CreatedSeq:  e.clock.Next(),
	}); err != nil {
		return err
	}
	e.transition(ctx, inv, StateQueued, "")
	e.sched.Enqueue(inv)
	slog.Debug("invocation queued",
		"tool", tool, "invocation", inv.Token, "provenance", provenance)
	return nil
}

// launch opens the invocation's edit and diagnostics record and hands it to
// the runner. The snapshot it was admitted against is still current: nothing
// commits between admission and launch.
func (e *Engine) launch(ctx context.Context, inv *Invocation, snap *ir.Snapshot) error {
	edit, err := e.store.BeginEdit(snap.Revision(), inv.claim)
	if err != nil {
		return err
	}
	rationale, err := ir.MarshalCanonical(map[string]any{
		"tool":  inv.Tool.Name(),
		"round": e.round,
		"base":  snap.Revision(),
		"claim": inv.claim.String(),
	})
	if err != nil {
		return err
	}
	report, err := e.collector.StartStep(inv.Tool.Name(), inv.Token, rationale)
	if err != nil {
		return err
	}
	inv.base = snap.Revision()
	inv.edit = edit
	inv.report = report
	inv.rationale = rationale

	e.transition(ctx, inv, StateAdmitted, "")
	e.transition(ctx, inv, StateRunning, "")
	slog.Info("invocation running",
		"tool", inv.Tool.Name(),
		"invocation", inv.Token,
		"base", inv.base,
		"claim", inv.claim,
	)
	e.runner.Launch(ctx, inv, RunContext{Snapshot: snap, Args: inv.Args, Edit: edit, Report: report, inv: inv})
	return nil
}

// handle processes one completion: release the claim and reservation, then
// either commit the edit and enqueue the tool's suggestions or seal the
// failure record.
func (e *Engine) handle(ctx context.Context, comp Completion) error {
	inv := comp.Inv
	e.sched.Release(inv)

	if comp.Err != nil {
		e.failStep(ctx, inv, comp.Err)
		return nil
	}

	next, err := e.store.Commit(inv.edit)
	if err != nil {
		// Claim violation or lost update. The store rejected the edit and the
		// revision is unchanged; containment applies just as for a tool error.
		e.failStep(ctx, inv, err)
		return nil
	}
	if err := e.collector.ReportSnapshot(next); err != nil {
		return err
	}
	if err := inv.report.Finish(inv.base, next.Revision()); err != nil {
		slog.Error("failed to seal step record",
			"invocation", inv.Token, "error", err)
	}
	if err := e.log.RecordStep(ctx, runlog.Step{
		EndRevision:   uint64(next.Revision()),
		Token:         inv.Token,
		Tool:          inv.Tool.Name(),
		StartRevision: uint64(inv.base),
		Rationale:     string(inv.rationale),
	}); err != nil {
		return err
	}
	e.transition(ctx, inv, StateCompleted, "")
	slog.Info("invocation committed",
		"tool", inv.Tool.Name(),
		"invocation", inv.Token,
		"revision", next.Revision(),
	)

	for _, s := range inv.takeSuggestions() {
		if _, ok := e.tools[s.tool]; !ok {
			slog.Warn("suggestion names unknown tool, skipped",
				"tool", s.tool, "parent", inv.Token)
			continue
		}
		if err := e.spawn(ctx, s.tool, s.args, runlog.ProvenanceSuggestion, inv.Token); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) failStep(ctx context.Context, inv *Invocation, cause error) {
	e.failed++
	if inv.report != nil {
		if err := inv.report.Fail(inv.base, cause); err != nil {
			slog.Error("failed to seal failure record",
				"invocation", inv.Token, "error", err)
		}
	}
	e.transition(ctx, inv, StateFailed, cause.Error())
	slog.Error("invocation failed",
		"tool", inv.Tool.Name(),
		"invocation", inv.Token,
		"error", cause,
	)
}

func (e *Engine) transition(ctx context.Context, inv *Invocation, state State, detail string) {
	inv.state = state
	if err := e.log.RecordTransition(ctx, runlog.Transition{
		Token:    inv.Token,
		State:    state.String(),
		Seq:      e.clock.Next(),
		Revision: uint64(e.store.Revision()),
		Detail:   detail,
	}); err != nil {
		slog.Error("failed to record transition",
			"invocation", inv.Token, "state", state, "error", err)
	}
}

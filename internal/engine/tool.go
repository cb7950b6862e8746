package engine

import (
	"context"

	"github.com/betterbytes/harvest/internal/diag"
	"github.com/betterbytes/harvest/internal/ir"
)

// Tool is the contract every pipeline tool implements. A tool is evaluated
// and run many times over the course of a pipeline; it must treat each
// MightWrite call as a fresh question about the snapshot it is handed.
//
// MightWrite declares intent without side effects: given a snapshot, the tool
// reports whether it can run and, if so, exactly which IDs it may write. The
// declaration is binding; an invocation that writes outside its declared
// claim fails at commit.
//
// Run performs the work. All writes go through rc.Edit, all external
// processes through rc.Report.Exec, and follow-up work through rc.Suggest.
// Run must honor ctx cancellation on blocking operations.
type Tool interface {
	Name() string
	MightWrite(ec EvalContext) Outcome
	Run(ctx context.Context, rc RunContext) error
}

// EvalContext is the read-only view a tool evaluates its might-write contract
// against.
type EvalContext struct {
	Snapshot *ir.Snapshot
	Args     map[string]any
}

type outcomeKind int

const (
	outcomeNotRunnable outcomeKind = iota + 1
	outcomeDefer
	outcomeRunnable
)

// Outcome is a tool's answer to MightWrite. Construct with NotRunnable,
// Defer, or Runnable.
type Outcome struct {
	kind      outcomeKind
	claim     *ir.Claim
	resources Resources
}

// NotRunnable means the tool can never run against this pipeline: its inputs
// are absent and no future revision will provide them. The candidate is
// dropped.
func NotRunnable() Outcome {
	return Outcome{kind: outcomeNotRunnable}
}

// Defer means the tool cannot run against this snapshot but a later revision
// may change that, e.g. an input another tool is still producing. The
// candidate keeps its queue position and is re-evaluated next round.
func Defer() Outcome {
	return Outcome{kind: outcomeDefer}
}

// Runnable means the tool can run now, writing at most the claimed IDs. A
// nil claim is treated as the empty claim. The default resource demand is
// one CPU slot; override with WithResources.
func Runnable(claim *ir.Claim) Outcome {
	if claim == nil {
		claim = ir.NewClaim()
	}
	return Outcome{kind: outcomeRunnable, claim: claim, resources: Resources{CPU: 1}}
}

// WithResources sets the resource demand of a Runnable outcome.
func (o Outcome) WithResources(r Resources) Outcome {
	o.resources = r
	return o
}

// CanRun reports whether the outcome admits running now.
func (o Outcome) CanRun() bool { return o.kind == outcomeRunnable }

// Deferred reports whether the candidate should be re-evaluated next round.
func (o Outcome) Deferred() bool { return o.kind == outcomeDefer }

// Dropped reports whether the candidate can never run.
func (o Outcome) Dropped() bool { return o.kind == outcomeNotRunnable }

// Claim returns the declared write-set of a Runnable outcome, nil otherwise.
func (o Outcome) Claim() *ir.Claim { return o.claim }

// Resources returns the resource demand of a Runnable outcome.
func (o Outcome) Resources() Resources { return o.resources }

// RunContext carries everything a running invocation needs: the snapshot it
// was admitted against, the open edit scoped to its claim, and its
// diagnostics record.
type RunContext struct {
	Snapshot *ir.Snapshot
	Args     map[string]any
	Edit     *ir.Edit
	Report   *diag.StepReporter

	inv *Invocation
}

// Suggest queues a follow-up invocation of the named tool. Suggestions are
// collected while the tool runs and enqueued only after its edit commits; a
// failed invocation's suggestions are discarded.
//
// Safe to call from any goroutine the tool spawns.
func (rc RunContext) Suggest(tool string, args map[string]any) {
	rc.inv.addSuggestion(tool, args)
}

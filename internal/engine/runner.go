package engine

import (
	"context"
	"log/slog"
	"runtime/debug"
)

// Completion is delivered once per launched invocation. Err is nil on
// success, otherwise a *ToolFailureError wrapping the tool's error or
// recovered panic.
type Completion struct {
	Inv *Invocation
	Err error
}

// Runner launches invocations on their own goroutines and funnels their
// completions back to the main loop. Panics inside a tool are contained and
// surface as ordinary failures; one broken tool must not take down the run.
//
// Launch, Wait, and TryNext are main-loop only.
type Runner struct {
	completions chan Completion
	running     int
}

// NewRunner creates an idle runner.
func NewRunner() *Runner {
	return &Runner{completions: make(chan Completion)}
}

// Running returns the number of launched invocations whose completions have
// not been collected yet.
func (r *Runner) Running() int { return r.running }

// Launch starts the invocation's tool on a new goroutine.
func (r *Runner) Launch(ctx context.Context, inv *Invocation, rc RunContext) {
	r.running++
	go func() {
		r.completions <- Completion{Inv: inv, Err: runContained(ctx, inv, rc)}
	}()
}

// Wait blocks until one invocation completes or ctx is done.
func (r *Runner) Wait(ctx context.Context) (Completion, error) {
	select {
	case c := <-r.completions:
		r.running--
		return c, nil
	case <-ctx.Done():
		return Completion{}, ctx.Err()
	}
}

// TryNext collects a completion if one is already available. Used to drain
// everything that finished while the main loop was committing.
func (r *Runner) TryNext() (Completion, bool) {
	select {
	case c := <-r.completions:
		r.running--
		return c, true
	default:
		return Completion{}, false
	}
}

func runContained(ctx context.Context, inv *Invocation, rc RunContext) (err error) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("tool panicked",
				"tool", inv.Tool.Name(),
				"invocation", inv.Token,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			err = &ToolFailureError{Tool: inv.Tool.Name(), Panic: p}
		}
	}()
	if runErr := inv.Tool.Run(ctx, rc); runErr != nil {
		return &ToolFailureError{Tool: inv.Tool.Name(), Err: runErr}
	}
	return nil
}

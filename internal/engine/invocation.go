package engine

import (
	"sync"

	"github.com/betterbytes/harvest/internal/diag"
	"github.com/betterbytes/harvest/internal/ir"
)

// State is an invocation's position in its lifecycle. Transitions are
// recorded in the run log as they happen.
type State int

const (
	StateQueued State = iota + 1
	StateNotRunnable
	StateAdmitted
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateNotRunnable:
		return "not_runnable"
	case StateAdmitted:
		return "admitted"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Invocation is one scheduled execution of a tool with fixed arguments. The
// token identifies it everywhere: run log, diagnostics, logs. The fingerprint
// is content-addressed over tool name and arguments, so re-suggested work is
// correlatable across rounds.
//
// All fields except the suggestion buffer are owned by the main loop.
type Invocation struct {
	Token       string
	Tool        Tool
	Args        map[string]any
	Fingerprint string
	Provenance  string // "seed" or "suggestion"
	Parent      string // parent invocation token, empty for seeds

	state     State
	claim     *ir.Claim
	resources Resources
	base      ir.Revision
	edit      *ir.Edit
	report    *diag.StepReporter
	rationale []byte

	mu          sync.Mutex
	suggestions []suggestion
}

type suggestion struct {
	tool string
	args map[string]any
}

// State returns the invocation's current lifecycle state.
func (inv *Invocation) State() State { return inv.state }

// Claim returns the write-set the invocation was admitted with, nil before
// admission.
func (inv *Invocation) Claim() *ir.Claim { return inv.claim }

func (inv *Invocation) addSuggestion(tool string, args map[string]any) {
	inv.mu.Lock()
	inv.suggestions = append(inv.suggestions, suggestion{tool: tool, args: args})
	inv.mu.Unlock()
}

func (inv *Invocation) takeSuggestions() []suggestion {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	s := inv.suggestions
	inv.suggestions = nil
	return s
}

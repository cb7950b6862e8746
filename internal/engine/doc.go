// Package engine implements the harvest orchestration core: the scheduler,
// tool runner, and main loop that drive analysis/transformation tools over
// the versioned IR.
//
// ARCHITECTURE:
//
// Single-Writer Main Loop:
// The main loop runs in one goroutine and is the sole committer of IR edits.
// Tools execute concurrently in their own goroutines, but everything that
// mutates shared state (admission, commit, claim release, run-log writes)
// happens on the loop. This keeps the round structure deterministic and the
// run log replayable.
//
// Round Processing Flow:
//  1. Take the current snapshot
//  2. Evaluate every candidate's might-write contract against it
//  3. Admit candidates whose claims are disjoint from all in-flight claims
//     and whose resource demand can be reserved
//  4. Launch the admitted batch; block until at least one invocation
//     completes
//  5. Commit each completed edit (one snapshot per commit), record the
//     transition, enqueue the tool's suggestions
//  6. Repeat until no candidate remains and nothing is running
//
// CRITICAL PATTERNS:
//
// Claim-Then-Commit Exclusion:
// Concurrency control is optimistic exclusion, not locking: tools declare a
// write-set before running, the conflict tracker admits only disjoint claims,
// and the store's commit re-checks the contract. A conflicting candidate is
// deferred to a later round, never rejected.
//
// Deterministic Tie-Break:
// Candidates are evaluated in queue order (seeds before suggestions, then
// arrival order) and the order never changes while a candidate waits. The
// same inputs produce the same admission sequence, which is what makes
// diagnostics bisection reproducible.
//
// Logical Clock:
// Run-log records are stamped with a monotonic sequence counter, never
// wall-clock time.
package engine

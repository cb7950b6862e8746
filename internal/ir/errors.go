package ir

import (
	"errors"
	"fmt"
)

// StaleBaseError is returned when an edit was computed against a superseded
// snapshot: between the edit's base revision and commit time, another edit
// touched one of the same IDs. Committing it would silently discard that
// intervening write.
//
// The scheduler's conflict tracker prevents overlapping claims from running
// concurrently, so this is a programming error in a tool (or a misuse of the
// Store API), never a runtime race. It is fatal to the invocation, not to
// the run.
type StaleBaseError struct {
	Base    Revision // revision the edit was begun against
	Current Revision // store revision at the failing call
	IDs     []ID     // touched IDs modified after Base (empty for BeginEdit failures)
}

func (e *StaleBaseError) Error() string {
	if len(e.IDs) > 0 {
		return fmt.Sprintf("stale base: revision %d superseded by %d for ids %v", e.Base, e.Current, e.IDs)
	}
	return fmt.Sprintf("stale base: revision %d is not current (%d)", e.Base, e.Current)
}

// IsStaleBase reports whether err is (or wraps) a StaleBaseError.
func IsStaleBase(err error) bool {
	var se *StaleBaseError
	return errors.As(err, &se)
}

// ClaimViolationError is returned when an edit touches IDs outside the claim
// its invocation declared. The declared write-set is a contract: the actual
// edit must be a subset. A violation is a defect in the tool and fails the
// invocation without mutating the IR.
type ClaimViolationError struct {
	Claim *Claim
	IDs   []ID // touched IDs not covered by the claim
}

func (e *ClaimViolationError) Error() string {
	return fmt.Sprintf("claim violation: edit touches %v outside claim %s", e.IDs, e.Claim)
}

// IsClaimViolation reports whether err is (or wraps) a ClaimViolationError.
func IsClaimViolation(err error) bool {
	var ce *ClaimViolationError
	return errors.As(err, &ce)
}

// UnknownIDError is returned when a claim or edit refers to an ID that is not
// present in the base snapshot. Like a claim violation, it indicates a defect
// in the tool's might-write evaluation.
type UnknownIDError struct {
	ID ID
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown id %s", e.ID)
}

// IsUnknownID reports whether err is (or wraps) an UnknownIDError.
func IsUnknownID(err error) bool {
	var ue *UnknownIDError
	return errors.As(err, &ue)
}

package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ToolFailureError records a tool invocation that reported an error or
// panicked. The failure is contained: the invocation is marked failed, no
// edit is merged, and the run continues.
type ToolFailureError struct {
	Tool  string
	Err   error // the error Run returned, nil if the tool panicked
	Panic any   // recovered panic value, nil if the tool returned an error
}

func (e *ToolFailureError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("tool %s panicked: %v", e.Tool, e.Panic)
	}
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *ToolFailureError) Unwrap() error { return e.Err }

// IsToolFailure reports whether err is (or wraps) a ToolFailureError.
func IsToolFailure(err error) bool {
	var te *ToolFailureError
	return errors.As(err, &te)
}

// QuotaExceededError is returned when a run creates more invocations than
// its configured quota. The quota bounds the growth of the open-ended
// suggestion queue: tools that keep suggesting work cannot run forever.
type QuotaExceededError struct {
	Created int
	Limit   int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("invocation quota exceeded: %d invocations > %d limit", e.Created, e.Limit)
}

// IsQuotaExceeded reports whether err is (or wraps) a QuotaExceededError.
func IsQuotaExceeded(err error) bool {
	var qe *QuotaExceededError
	return errors.As(err, &qe)
}

// StallError is returned when the main loop cannot make progress: nothing is
// running, no candidate was admitted, yet candidates remain. With nothing in
// flight every claim is free and the resource pool is full, so the remaining
// candidates can never become admissible.
type StallError struct {
	Remaining []string // tool names of the stuck candidates, queue order
}

func (e *StallError) Error() string {
	return fmt.Sprintf("pipeline stalled with %d candidates that can never run: %s",
		len(e.Remaining), strings.Join(e.Remaining, ", "))
}

// IsStall reports whether err is (or wraps) a StallError.
func IsStall(err error) bool {
	var se *StallError
	return errors.As(err, &se)
}

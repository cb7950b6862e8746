// Package diag collects the diagnostics for one pipeline run: every IR
// snapshot, a record per invocation, and transcripts of every external
// process a tool launches. The resulting directory is the input for
// after-the-fact bisection of which step introduced a defect.
//
// On-disk layout, rooted at the collector's directory:
//
//	ir/NNNN           one directory per snapshot revision, zero-padded
//	ir/NNNN/index     "ID: kind" lines, ascending ID order
//	ir/NNNN/<id>      that representation's display or materialized form
//	steps/NNNN        one directory per completed invocation, named after
//	                  the revision its edit produced
//	steps/NNNN/start_ir, end_ir    the two bracketing revisions
//	steps/NNNN/rationale           why the scheduler admitted it
//	steps/NNNN/messages            free-form tool output
//	steps/NNNN/<n>/cmd,stdin,stdout,stderr
//	                  one numbered directory per external-process call
//
// Failed invocations produce no revision; their records are kept under
// steps/failed-<tool>-<token> so the transcript of a failing build is not
// lost.
//
// A Collector's lifetime is explicitly one run: construct at start, hand
// StepReporters to tools by reference, Close at the end. There is no global
// singleton, so concurrent runs (e.g. tests) never share state.
package diag

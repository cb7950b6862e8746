// Package runlog provides durable storage for one pipeline run's scheduling
// history: every invocation with its provenance, every lifecycle transition,
// and one step record per committed edit keyed by the revision it produced.
//
// The log complements the diagnostics directory: the directory holds the
// bulky payloads (snapshots, transcripts) while the log answers the
// relational questions bisection asks: "which invocation produced revision
// N", "what states did this invocation pass through", "which suggestions did
// a given invocation spawn".
//
// Uses SQLite with WAL mode. The main loop is the only writer; readers (the
// bisect command) may open the same file concurrently.
package runlog

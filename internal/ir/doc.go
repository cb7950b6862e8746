// Package ir implements the versioned intermediate representation shared by
// every tool in the translation pipeline.
//
// The IR is an ordered mapping from ID to Representation. Representations are
// immutable once created; mutation is always modeled as replacing the
// representation under an ID in the next snapshot.
//
// ARCHITECTURE:
//
// Snapshot/Commit Versioning:
// The Store hands out immutable, numbered Snapshots. All mutation goes through
// the claim-then-commit path:
//  1. BeginEdit(base, claim) opens an Edit against the current revision
//  2. The edit records add/replace/remove operations
//  3. Commit validates the edit (stale-base, claim subset) and applies it
//     atomically, producing revision N+1
//
// Revision N+1 is always reconstructible from revision N plus exactly one
// edit. Snapshots never change after creation, so readers never block.
//
// CRITICAL PATTERNS:
//
// Centralized ID Allocation:
// New IDs come from a single atomic counter owned by the Store. Concurrently
// running tools can allocate IDs before their edits commit without ever
// colliding.
//
// Lost-Update Prevention:
// Commit rejects an edit if any ID it touches was modified after the edit's
// base revision (StaleBaseError). Edits with disjoint touched sets commute;
// overlapping edits are excluded upstream by the scheduler's conflict tracker,
// so a StaleBaseError at commit time is a programming error in a tool, not a
// race.
package ir

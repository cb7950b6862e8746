package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Invocation provenance values.
const (
	ProvenanceSeed       = "seed"
	ProvenanceSuggestion = "suggestion"
)

// Invocation is one invocation record.
type Invocation struct {
	Token       string
	Tool        string
	Fingerprint string
	Provenance  string
	ParentToken string // empty for seeds
	CreatedSeq  int64
}

// Transition is one lifecycle transition of an invocation.
type Transition struct {
	Token    string
	State    string
	Seq      int64
	Revision uint64
	Detail   string
}

// Step is one committed edit, keyed by the revision it produced.
type Step struct {
	EndRevision   uint64
	Token         string
	Tool          string
	StartRevision uint64
	Rationale     string
}

// ErrNotFound is returned by lookups that match no record.
var ErrNotFound = errors.New("runlog: not found")

// RecordInvocation inserts an invocation record. Idempotent on token.
func (l *Log) RecordInvocation(ctx context.Context, inv Invocation) error {
	parent := sql.NullString{String: inv.ParentToken, Valid: inv.ParentToken != ""}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO invocations (token, tool, fingerprint, provenance, parent_token, created_seq)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`, inv.Token, inv.Tool, inv.Fingerprint, inv.Provenance, parent, inv.CreatedSeq)
	if err != nil {
		return fmt.Errorf("record invocation %s: %w", inv.Token, err)
	}
	return nil
}

// RecordTransition appends a lifecycle transition for an invocation.
func (l *Log) RecordTransition(ctx context.Context, tr Transition) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO transitions (invocation_token, state, seq, revision, detail)
		VALUES (?, ?, ?, ?, ?)
	`, tr.Token, tr.State, tr.Seq, tr.Revision, tr.Detail)
	if err != nil {
		return fmt.Errorf("record transition %s/%s: %w", tr.Token, tr.State, err)
	}
	return nil
}

// RecordStep inserts the step record for a committed edit. Idempotent on the
// resulting revision.
func (l *Log) RecordStep(ctx context.Context, st Step) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO steps (end_revision, invocation_token, tool, start_revision, rationale)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(end_revision) DO NOTHING
	`, st.EndRevision, st.Token, st.Tool, st.StartRevision, st.Rationale)
	if err != nil {
		return fmt.Errorf("record step for revision %d: %w", st.EndRevision, err)
	}
	return nil
}

// StepForRevision returns the step whose edit produced the given revision.
// This is the core bisection query: once a broken invariant is first visible
// at revision N, the returned step names the invocation that introduced it.
func (l *Log) StepForRevision(ctx context.Context, revision uint64) (Step, error) {
	var st Step
	err := l.db.QueryRowContext(ctx, `
		SELECT end_revision, invocation_token, tool, start_revision, rationale
		FROM steps WHERE end_revision = ?
	`, revision).Scan(&st.EndRevision, &st.Token, &st.Tool, &st.StartRevision, &st.Rationale)
	if errors.Is(err, sql.ErrNoRows) {
		return Step{}, fmt.Errorf("step for revision %d: %w", revision, ErrNotFound)
	}
	if err != nil {
		return Step{}, fmt.Errorf("step for revision %d: %w", revision, err)
	}
	return st, nil
}

// History returns an invocation's transitions in sequence order.
func (l *Log) History(ctx context.Context, token string) ([]Transition, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT invocation_token, state, seq, revision, detail
		FROM transitions WHERE invocation_token = ?
		ORDER BY seq
	`, token)
	if err != nil {
		return nil, fmt.Errorf("history %s: %w", token, err)
	}
	defer rows.Close()

	var trs []Transition
	for rows.Next() {
		var tr Transition
		if err := rows.Scan(&tr.Token, &tr.State, &tr.Seq, &tr.Revision, &tr.Detail); err != nil {
			return nil, fmt.Errorf("history %s: %w", token, err)
		}
		trs = append(trs, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history %s: %w", token, err)
	}
	return trs, nil
}

// Invocations returns every invocation record in enqueue order.
func (l *Log) Invocations(ctx context.Context) ([]Invocation, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT token, tool, fingerprint, provenance, parent_token, created_seq
		FROM invocations ORDER BY created_seq
	`)
	if err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	defer rows.Close()

	var invs []Invocation
	for rows.Next() {
		var inv Invocation
		var parent sql.NullString
		if err := rows.Scan(&inv.Token, &inv.Tool, &inv.Fingerprint, &inv.Provenance, &parent, &inv.CreatedSeq); err != nil {
			return nil, fmt.Errorf("list invocations: %w", err)
		}
		inv.ParentToken = parent.String
		invs = append(invs, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list invocations: %w", err)
	}
	return invs, nil
}

// Steps returns every step record in revision order.
func (l *Log) Steps(ctx context.Context) ([]Step, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT end_revision, invocation_token, tool, start_revision, rationale
		FROM steps ORDER BY end_revision
	`)
	if err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	defer rows.Close()

	var steps []Step
	for rows.Next() {
		var st Step
		if err := rows.Scan(&st.EndRevision, &st.Token, &st.Tool, &st.StartRevision, &st.Rationale); err != nil {
			return nil, fmt.Errorf("list steps: %w", err)
		}
		steps = append(steps, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list steps: %w", err)
	}
	return steps, nil
}

package diag

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/betterbytes/harvest/internal/ir"
)

// Collector persists the diagnostics for one run. Safe for concurrent use:
// snapshot reporting happens on the main loop while StepReporters are written
// to from tool goroutines, each in its own staging directory.
type Collector struct {
	dir  string
	temp bool // dir was created by us and is removed on Close
}

// NewCollector creates a collector rooted at dir, which must be empty or
// absent. If dir is empty a temporary directory is used and removed on
// Close; tools still need somewhere to stage files even when the caller does
// not want diagnostics kept.
func NewCollector(dir string) (*Collector, error) {
	temp := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "harvest-diag-")
		if err != nil {
			return nil, fmt.Errorf("create diagnostics tempdir: %w", err)
		}
		dir = tmp
		temp = true
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create diagnostics dir: %w", err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read diagnostics dir: %w", err)
		}
		if len(entries) > 0 {
			return nil, fmt.Errorf("diagnostics dir %s is not empty", dir)
		}
	}
	// Canonical path: it ends up in command lines handed to external
	// processes, and the resolved form is the most compatible one.
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve diagnostics dir: %w", err)
	}
	for _, sub := range []string{"ir", "steps"} {
		if err := os.Mkdir(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create diagnostics layout: %w", err)
		}
	}
	return &Collector{dir: abs, temp: temp}, nil
}

// OpenDir returns a collector over an existing diagnostics directory, for
// read-side tooling such as bisection. The directory must have been written
// by a previous run.
func OpenDir(dir string) (*Collector, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve diagnostics dir: %w", err)
	}
	for _, sub := range []string{"ir", "steps"} {
		info, err := os.Stat(filepath.Join(abs, sub))
		if err != nil || !info.IsDir() {
			return nil, fmt.Errorf("%s is not a diagnostics dir: missing %s/", abs, sub)
		}
	}
	return &Collector{dir: abs}, nil
}

// Dir returns the root of the diagnostics directory.
func (c *Collector) Dir() string { return c.dir }

// Close flushes the collector. A temporary directory is removed; a
// configured one is kept for bisection tooling.
func (c *Collector) Close() error {
	if c.temp {
		return os.RemoveAll(c.dir)
	}
	return nil
}

// ReportSnapshot persists a snapshot under ir/NNNN so any two revisions can
// be diffed later. Representations that fail to materialize are logged and
// skipped; a partially materialized payload must not fail the run, but the
// index is always written.
func (c *Collector) ReportSnapshot(snap *ir.Snapshot) error {
	dir := filepath.Join(c.dir, "ir", snap.Revision().String())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return fmt.Errorf("report snapshot %s: %w", snap.Revision(), err)
	}
	for _, id := range snap.IDs() {
		repr, _ := snap.Get(id)
		if err := ir.Materialize(repr, filepath.Join(dir, id.String())); err != nil {
			slog.Error("failed to materialize representation",
				"revision", snap.Revision(),
				"id", id,
				"kind", repr.Name(),
				"error", err,
			)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "index"), []byte(snap.String()), 0o644); err != nil {
		return fmt.Errorf("write snapshot index %s: %w", snap.Revision(), err)
	}
	return nil
}

// SnapshotIndex reads back the index persisted for a revision. Used by the
// bisect command; returns the raw "ID: kind" lines.
func (c *Collector) SnapshotIndex(rev ir.Revision) (string, error) {
	content, err := os.ReadFile(filepath.Join(c.dir, "ir", rev.String(), "index"))
	if err != nil {
		return "", fmt.Errorf("read snapshot index %s: %w", rev, err)
	}
	return string(content), nil
}

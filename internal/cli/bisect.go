package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/betterbytes/harvest/internal/diag"
	"github.com/betterbytes/harvest/internal/ir"
	"github.com/betterbytes/harvest/internal/runlog"
)

// BisectOptions holds flags for the bisect command.
type BisectOptions struct {
	*RootOptions
	Database    string
	Diagnostics string
}

// NewBisectCommand creates the bisect command.
func NewBisectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BisectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "bisect <revision>",
		Short: "Explain which invocation produced a revision",
		Long: `Explain which tool invocation produced a revision: its token, rationale,
lifecycle history, and (with --diag) the representations it changed.

Once a broken invariant is first visible at revision N, this names the
invocation that introduced it.

Example:
  harvest bisect --db ./harvest-run.db 12
  harvest bisect --db ./harvest-run.db --diag ./diag 12`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bisect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the run-log database (required)")
	cmd.Flags().StringVar(&opts.Diagnostics, "diag", "", "diagnostics directory of the run")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func bisect(opts *BisectOptions, revArg string, cmd *cobra.Command) error {
	setupLogging(opts.Verbose)

	revision, err := strconv.ParseUint(revArg, 10, 64)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid revision %q", revArg), err)
	}

	log, err := runlog.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open run log", err)
	}
	defer log.Close()

	ctx := cmd.Context()
	step, err := log.StepForRevision(ctx, revision)
	if errors.Is(err, runlog.ErrNotFound) {
		return NewExitError(ExitFailure, fmt.Sprintf("no step produced revision %d", revision))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query run log", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "revision %s produced by %s\n", ir.Revision(step.EndRevision), step.Tool)
	fmt.Fprintf(out, "  invocation: %s\n", step.Token)
	fmt.Fprintf(out, "  base:       %s\n", ir.Revision(step.StartRevision))
	if step.Rationale != "" {
		fmt.Fprintf(out, "  rationale:  %s\n", step.Rationale)
	}

	history, err := log.History(ctx, step.Token)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to query run log", err)
	}
	fmt.Fprintf(out, "history:\n")
	for _, tr := range history {
		if tr.Detail != "" {
			fmt.Fprintf(out, "  %6d  %-12s %s\n", tr.Seq, tr.State, tr.Detail)
		} else {
			fmt.Fprintf(out, "  %6d  %s\n", tr.Seq, tr.State)
		}
	}

	if opts.Diagnostics == "" {
		return nil
	}
	collector, err := diag.OpenDir(opts.Diagnostics)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open diagnostics dir", err)
	}
	before, err := collector.SnapshotIndex(ir.Revision(step.StartRevision))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot index", err)
	}
	after, err := collector.SnapshotIndex(ir.Revision(step.EndRevision))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot index", err)
	}
	fmt.Fprintf(out, "representation changes:\n")
	changes := diffIndex(before, after)
	if len(changes) == 0 {
		fmt.Fprintf(out, "  (none)\n")
	}
	for _, line := range changes {
		fmt.Fprintf(out, "  %s\n", line)
	}
	return nil
}

// diffIndex compares two snapshot index listings ("ID: kind" per line) and
// renders the additions, removals, and kind changes between them.
func diffIndex(before, after string) []string {
	parse := func(s string) map[string]string {
		m := make(map[string]string)
		for _, line := range strings.Split(strings.TrimSpace(s), "\n") {
			id, kind, ok := strings.Cut(line, ": ")
			if ok {
				m[id] = kind
			}
		}
		return m
	}
	prev, cur := parse(before), parse(after)

	ids := make([]string, 0, len(prev)+len(cur))
	seen := make(map[string]struct{})
	for id := range prev {
		ids = append(ids, id)
		seen[id] = struct{}{}
	}
	for id := range cur {
		if _, ok := seen[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var changes []string
	for _, id := range ids {
		pk, inPrev := prev[id]
		ck, inCur := cur[id]
		switch {
		case !inPrev:
			changes = append(changes, fmt.Sprintf("+ %s: %s", id, ck))
		case !inCur:
			changes = append(changes, fmt.Sprintf("- %s: %s", id, pk))
		case pk != ck:
			changes = append(changes, fmt.Sprintf("~ %s: %s -> %s", id, pk, ck))
		}
	}
	return changes
}

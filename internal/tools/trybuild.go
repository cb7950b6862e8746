package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/betterbytes/harvest/internal/engine"
	"github.com/betterbytes/harvest/internal/ir"
)

// TryBuild materializes the ingested tree into a scratch directory, compiles
// its C sources, and records the outcome as the build_report representation.
// A failing compile is a finding, not a tool failure: the report carries the
// compiler's stderr for later tools (and humans) to read.
type TryBuild struct {
	compiler string
	flags    []string
}

// NewTryBuild creates the build probe. An empty compiler means "cc".
func NewTryBuild(compiler string, flags ...string) *TryBuild {
	if compiler == "" {
		compiler = "cc"
	}
	return &TryBuild{compiler: compiler, flags: flags}
}

func (*TryBuild) Name() string { return "try_build" }

func (*TryBuild) MightWrite(ec engine.EvalContext) engine.Outcome {
	if len(ec.Snapshot.ByName(KindBuildReport)) > 0 {
		return engine.NotRunnable()
	}
	if len(ec.Snapshot.ByName(KindRawSource)) == 0 {
		return engine.Defer()
	}
	return engine.Runnable(ir.NewClaim().WithNewAllocations())
}

func (t *TryBuild) Run(ctx context.Context, rc engine.RunContext) error {
	src, err := rawSource(rc.Snapshot)
	if err != nil {
		return err
	}
	work, err := rc.Report.Workdir("build")
	if err != nil {
		return err
	}
	tree := filepath.Join(work, "src")
	if err := src.Materialize(tree); err != nil {
		return err
	}

	var sources []string
	for _, p := range src.Paths() {
		if strings.HasSuffix(p, ".c") {
			sources = append(sources, filepath.Join(tree, filepath.FromSlash(p)))
		}
	}
	if len(sources) == 0 {
		rc.Report.Message("no C sources to build")
		rc.Edit.Add(ir.NewText(KindBuildReport, "skipped: no C sources"))
		return nil
	}

	args := append([]string{}, t.flags...)
	args = append(args, "-o", filepath.Join(work, "a.out"))
	args = append(args, sources...)
	_, stderr, buildErr := rc.Report.Exec(ctx, nil, t.compiler, args...)

	var report string
	if buildErr != nil {
		rc.Report.Message("build failed: %v", buildErr)
		report = fmt.Sprintf("failed: %v\n%s", buildErr, stderr)
	} else {
		rc.Report.Message("build succeeded with %d sources", len(sources))
		report = fmt.Sprintf("ok: %d sources", len(sources))
	}
	rc.Edit.Add(ir.NewText(KindBuildReport, report))
	return nil
}

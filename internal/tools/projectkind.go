package tools

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/betterbytes/harvest/internal/engine"
	"github.com/betterbytes/harvest/internal/ir"
)

// ProjectKind classifies the ingested source tree by build system and records
// the result as the project_kind representation. Downstream tools use the
// classification to pick a build strategy.
type ProjectKind struct{}

// NewProjectKind creates the classification tool.
func NewProjectKind() *ProjectKind { return &ProjectKind{} }

func (*ProjectKind) Name() string { return "project_kind" }

func (*ProjectKind) MightWrite(ec engine.EvalContext) engine.Outcome {
	if len(ec.Snapshot.ByName(KindProjectKind)) > 0 {
		return engine.NotRunnable()
	}
	if len(ec.Snapshot.ByName(KindRawSource)) == 0 {
		return engine.Defer()
	}
	return engine.Runnable(ir.NewClaim().WithNewAllocations())
}

func (*ProjectKind) Run(ctx context.Context, rc engine.RunContext) error {
	src, err := rawSource(rc.Snapshot)
	if err != nil {
		return err
	}
	kind := classify(src)
	rc.Edit.Add(ir.NewText(KindProjectKind, kind))
	rc.Report.Message("classified %d files as %s", src.Len(), kind)
	return nil
}

// classify inspects top-level build files, falling back to the presence of C
// sources anywhere in the tree.
func classify(src *ir.RawDir) string {
	hasC := false
	for _, p := range src.Paths() {
		if path.Dir(p) == "." {
			switch {
			case p == "CMakeLists.txt":
				return "cmake"
			case p == "configure" || p == "configure.ac" || p == "configure.in":
				return "autotools"
			case p == "Makefile" || p == "makefile" || p == "GNUmakefile":
				return "make"
			}
		}
		if strings.HasSuffix(p, ".c") {
			hasC = true
		}
	}
	if hasC {
		return "plain"
	}
	return "unknown"
}

// rawSource fetches the raw_source tree from a snapshot. The callers only run
// after their might-write evaluation saw it, so absence is a defect.
func rawSource(snap *ir.Snapshot) (*ir.RawDir, error) {
	ids := snap.ByName(KindRawSource)
	if len(ids) == 0 {
		return nil, fmt.Errorf("snapshot %s has no %s", snap.Revision(), KindRawSource)
	}
	repr, _ := snap.Get(ids[0])
	src, ok := repr.(*ir.RawDir)
	if !ok {
		return nil, fmt.Errorf("%s is not a file tree", KindRawSource)
	}
	return src, nil
}

package tools

import (
	"context"
	"fmt"

	"github.com/betterbytes/harvest/internal/engine"
	"github.com/betterbytes/harvest/internal/ir"
)

// Representation kinds produced by the built-in tools.
const (
	KindRawSource   = "raw_source"
	KindProjectKind = "project_kind"
	KindBuildReport = "build_report"
)

// LoadSource ingests the input source tree as the raw_source representation
// and suggests the analysis tools that consume it. It is the usual seed of a
// pipeline: everything else defers until raw_source exists.
//
// Args: "path", the root of the tree to ingest.
type LoadSource struct{}

// NewLoadSource creates the ingestion tool.
func NewLoadSource() *LoadSource { return &LoadSource{} }

func (*LoadSource) Name() string { return "load_source" }

func (*LoadSource) MightWrite(ec engine.EvalContext) engine.Outcome {
	if len(ec.Snapshot.ByName(KindRawSource)) > 0 {
		return engine.NotRunnable()
	}
	if path, _ := ec.Args["path"].(string); path == "" {
		return engine.NotRunnable()
	}
	return engine.Runnable(ir.NewClaim().WithNewAllocations())
}

func (*LoadSource) Run(ctx context.Context, rc engine.RunContext) error {
	path, _ := rc.Args["path"].(string)
	src, err := ir.LoadRawDir(KindRawSource, path)
	if err != nil {
		return err
	}
	if src.Len() == 0 {
		return fmt.Errorf("no files under %s", path)
	}
	rc.Edit.Add(src)
	rc.Report.Message("loaded %d files from %s", src.Len(), path)
	rc.Suggest("project_kind", nil)
	rc.Suggest("try_build", nil)
	return nil
}

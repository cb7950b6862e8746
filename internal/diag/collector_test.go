package diag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betterbytes/harvest/internal/ir"
)

// buildSnapshot commits one edit adding the given representations.
func buildSnapshot(t *testing.T, reprs ...ir.Representation) *ir.Snapshot {
	t.Helper()
	store := ir.NewStore()
	edit, err := store.BeginEdit(0, ir.NewClaim().WithNewAllocations())
	require.NoError(t, err)
	for _, r := range reprs {
		edit.Add(r)
	}
	snap, err := store.Commit(edit)
	require.NoError(t, err)
	return snap
}

func TestNewCollector_Layout(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	c, err := NewCollector(dir)
	require.NoError(t, err)
	defer c.Close()

	assert.DirExists(t, filepath.Join(c.Dir(), "ir"))
	assert.DirExists(t, filepath.Join(c.Dir(), "steps"))
}

func TestNewCollector_RejectsNonEmptyDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk"), nil, 0o644))
	_, err := NewCollector(dir)
	assert.Error(t, err)
}

func TestNewCollector_TempDirRemovedOnClose(t *testing.T) {
	c, err := NewCollector("")
	require.NoError(t, err)
	dir := c.Dir()
	assert.DirExists(t, dir)
	require.NoError(t, c.Close())
	assert.NoDirExists(t, dir)
}

func TestOpenDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "diag")
	c, err := NewCollector(dir)
	require.NoError(t, err)
	require.NoError(t, c.ReportSnapshot(buildSnapshot(t, ir.NewText("project_kind", "make"))))
	require.NoError(t, c.Close())

	reopened, err := OpenDir(dir)
	require.NoError(t, err)
	index, err := reopened.SnapshotIndex(ir.Revision(1))
	require.NoError(t, err)
	assert.Equal(t, "0001: project_kind\n", index)

	_, err = OpenDir(t.TempDir())
	assert.Error(t, err)
}

func TestReportSnapshot(t *testing.T) {
	c, err := NewCollector(filepath.Join(t.TempDir(), "diag"))
	require.NoError(t, err)
	defer c.Close()

	snap := buildSnapshot(t,
		ir.NewText("project_kind", "make"),
		ir.NewText("build_report", "ok"),
	)
	require.NoError(t, c.ReportSnapshot(snap))

	base := filepath.Join(c.Dir(), "ir", "0001")
	index, err := os.ReadFile(filepath.Join(base, "index"))
	require.NoError(t, err)
	assert.Equal(t, "0001: project_kind\n0002: build_report\n", string(index))

	content, err := os.ReadFile(filepath.Join(base, "0001"))
	require.NoError(t, err)
	assert.Equal(t, "make\n", string(content))

	got, err := c.SnapshotIndex(ir.Revision(1))
	require.NoError(t, err)
	assert.Equal(t, string(index), got)
}

func TestReportSnapshot_GoldenIndex(t *testing.T) {
	c, err := NewCollector(filepath.Join(t.TempDir(), "diag"))
	require.NoError(t, err)
	defer c.Close()

	src := ir.NewRawDir("raw_source")
	require.NoError(t, src.AddFile("main.c", []byte("int main(void) { return 0; }\n")))
	snap := buildSnapshot(t,
		src,
		ir.NewText("project_kind", "make"),
		ir.NewText("build_report", "exit status 0"),
	)
	require.NoError(t, c.ReportSnapshot(snap))

	index, err := c.SnapshotIndex(snap.Revision())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "snapshot_index", []byte(index))
}

func TestStepReporter_Finish(t *testing.T) {
	c, err := NewCollector(filepath.Join(t.TempDir(), "diag"))
	require.NoError(t, err)
	defer c.Close()

	step, err := c.StartStep("try_build", "tok-1", []byte(`{"round":1}`))
	require.NoError(t, err)
	step.Message("building candidate %d", 7)
	step.Message("done")
	require.NoError(t, step.Finish(ir.Revision(2), ir.Revision(3)))

	base := filepath.Join(c.Dir(), "steps", "0003")
	for file, want := range map[string]string{
		"start_ir":  "0002\n",
		"end_ir":    "0003\n",
		"rationale": "{\"round\":1}\n",
		"messages":  "building candidate 7\ndone\n",
	} {
		content, err := os.ReadFile(filepath.Join(base, file))
		require.NoError(t, err, file)
		assert.Equal(t, want, string(content), file)
	}
}

func TestStepReporter_Fail(t *testing.T) {
	c, err := NewCollector(filepath.Join(t.TempDir(), "diag"))
	require.NoError(t, err)
	defer c.Close()

	step, err := c.StartStep("try_build", "tok-2", nil)
	require.NoError(t, err)
	require.NoError(t, step.Fail(ir.Revision(4), errors.New("build exploded")))

	base := filepath.Join(c.Dir(), "steps", "failed-try_build-tok-2")
	content, err := os.ReadFile(filepath.Join(base, "error"))
	require.NoError(t, err)
	assert.Equal(t, "build exploded\n", string(content))

	start, err := os.ReadFile(filepath.Join(base, "start_ir"))
	require.NoError(t, err)
	assert.Equal(t, "0004\n", string(start))
	assert.NoFileExists(t, filepath.Join(base, "end_ir"))
}

func TestStepReporter_ExecTranscript(t *testing.T) {
	c, err := NewCollector(filepath.Join(t.TempDir(), "diag"))
	require.NoError(t, err)
	defer c.Close()

	step, err := c.StartStep("try_build", "tok-3", nil)
	require.NoError(t, err)

	stdout, stderr, err := step.Exec(context.Background(),
		[]byte("hello\n"), "sh", "-c", "cat; echo oops >&2")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(stdout))
	assert.Equal(t, "oops\n", string(stderr))

	require.NoError(t, step.Finish(ir.Revision(0), ir.Revision(1)))
	base := filepath.Join(c.Dir(), "steps", "0001", "000")
	for file, want := range map[string]string{
		"cmd":    "sh -c cat; echo oops >&2\n",
		"stdin":  "hello\n",
		"stdout": "hello\n",
		"stderr": "oops\n",
	} {
		content, err := os.ReadFile(filepath.Join(base, file))
		require.NoError(t, err, file)
		assert.Equal(t, want, string(content), file)
	}
}

func TestStepReporter_ExecFailureCaptured(t *testing.T) {
	c, err := NewCollector(filepath.Join(t.TempDir(), "diag"))
	require.NoError(t, err)
	defer c.Close()

	step, err := c.StartStep("try_build", "tok-4", nil)
	require.NoError(t, err)

	_, stderr, err := step.Exec(context.Background(), nil, "sh", "-c", "echo broken >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, "broken\n", string(stderr))

	require.NoError(t, step.Fail(ir.Revision(1), err))
	content, readErr := os.ReadFile(filepath.Join(
		c.Dir(), "steps", "failed-try_build-tok-4", "000", "stderr"))
	require.NoError(t, readErr)
	assert.Equal(t, "broken\n", string(content))
}

package diag

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/betterbytes/harvest/internal/ir"
)

// StepReporter records the diagnostics of a single tool invocation: free-form
// messages and the transcript of every external process the tool launches.
//
// While the invocation runs its record lives in a staging directory; Finish
// renames it to steps/NNNN after the resulting revision, Fail renames it to
// steps/failed-<tool>-<token>. Exactly one of Finish or Fail must be called.
//
// Message and Exec are safe to call from any goroutine the tool spawns.
type StepReporter struct {
	collector *Collector
	tool      string
	token     string
	dir       string // staging directory

	mu       sync.Mutex
	messages []string
	execs    int
}

// StartStep opens the invocation record. rationale is the scheduler's
// serialized admission rationale; it is written up front so it survives even
// a tool that wedges the process.
func (c *Collector) StartStep(tool, token string, rationale []byte) (*StepReporter, error) {
	dir := filepath.Join(c.dir, "steps", ".wip-"+token)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("start step %s: %w", tool, err)
	}
	if len(rationale) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "rationale"), append(rationale, '\n'), 0o644); err != nil {
			return nil, fmt.Errorf("start step %s: %w", tool, err)
		}
	}
	return &StepReporter{collector: c, tool: tool, token: token, dir: dir}, nil
}

// Message records a free-form diagnostic line from the tool.
func (r *StepReporter) Message(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	slog.Debug("tool message", "tool", r.tool, "invocation", r.token, "message", line)
	r.mu.Lock()
	r.messages = append(r.messages, line)
	r.mu.Unlock()
}

// Exec runs an external command on the tool's behalf, attaching its command
// line, standard input, and captured standard output/error to the invocation
// record. Returns the captured stdout and stderr along with the command's
// error, so a tool can inspect a failing build's output.
func (r *StepReporter) Exec(ctx context.Context, stdin []byte, name string, arg ...string) ([]byte, []byte, error) {
	r.mu.Lock()
	n := r.execs
	r.execs++
	r.mu.Unlock()

	dir := filepath.Join(r.dir, fmt.Sprintf("%03d", n))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("exec transcript dir: %w", err)
	}
	cmdline := strings.Join(append([]string{name}, arg...), " ")
	if err := os.WriteFile(filepath.Join(dir, "cmd"), []byte(cmdline+"\n"), 0o644); err != nil {
		return nil, nil, fmt.Errorf("write exec transcript: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stdin"), stdin, 0o644); err != nil {
		return nil, nil, fmt.Errorf("write exec transcript: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, arg...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	if err := os.WriteFile(filepath.Join(dir, "stdout"), stdout.Bytes(), 0o644); err != nil {
		return nil, nil, fmt.Errorf("write exec transcript: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "stderr"), stderr.Bytes(), 0o644); err != nil {
		return nil, nil, fmt.Errorf("write exec transcript: %w", err)
	}
	slog.Debug("external command finished",
		"tool", r.tool,
		"invocation", r.token,
		"cmd", cmdline,
		"error", runErr,
	)
	return stdout.Bytes(), stderr.Bytes(), runErr
}

// Workdir creates a scratch directory under the invocation record, e.g. for
// materializing a package before building it. The directory is kept with the
// record, which is usually exactly what bisection wants to look at.
func (r *StepReporter) Workdir(name string) (string, error) {
	dir := filepath.Join(r.dir, name)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workdir %s: %w", name, err)
	}
	return dir, nil
}

// Finish seals the record for a committed invocation, naming it after the
// revision its edit produced and writing the two bracketing revisions.
func (r *StepReporter) Finish(start, end ir.Revision) error {
	if err := r.seal(start, &end); err != nil {
		return err
	}
	return os.Rename(r.dir, filepath.Join(r.collector.dir, "steps", end.String()))
}

// Fail seals the record for a failed invocation. No revision was produced,
// so the record is named after the tool and token instead.
func (r *StepReporter) Fail(start ir.Revision, cause error) error {
	if err := os.WriteFile(filepath.Join(r.dir, "error"), []byte(cause.Error()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write step error: %w", err)
	}
	if err := r.seal(start, nil); err != nil {
		return err
	}
	name := fmt.Sprintf("failed-%s-%s", r.tool, r.token)
	return os.Rename(r.dir, filepath.Join(r.collector.dir, "steps", name))
}

func (r *StepReporter) seal(start ir.Revision, end *ir.Revision) error {
	if err := os.WriteFile(filepath.Join(r.dir, "start_ir"), []byte(start.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write start_ir: %w", err)
	}
	if end != nil {
		if err := os.WriteFile(filepath.Join(r.dir, "end_ir"), []byte(end.String()+"\n"), 0o644); err != nil {
			return fmt.Errorf("write end_ir: %w", err)
		}
	}
	r.mu.Lock()
	messages := strings.Join(r.messages, "\n")
	r.mu.Unlock()
	if messages != "" {
		messages += "\n"
	}
	if err := os.WriteFile(filepath.Join(r.dir, "messages"), []byte(messages), 0o644); err != nil {
		return fmt.Errorf("write messages: %w", err)
	}
	return nil
}

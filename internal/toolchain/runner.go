// Package toolchain invokes the external configure and build steps.
// The controller depends only on the (output, exit code) triple each step
// yields, not on the specific tool; cmake is just the default command pair.
package toolchain

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"mend/internal/logging"
)

// ErrUnresponsive marks a configure/build step that exceeded its timeout.
// Treated as fatal by the controller: an unresponsive toolchain cannot be
// fixed by patching source.
var ErrUnresponsive = errors.New("toolchain step timed out")

// Result is the outcome of one toolchain invocation.
type Result struct {
	// Command is the argv that was run.
	Command []string

	// Output is combined stdout+stderr in emission order. Diagnostics
	// interleave across both streams, so they are parsed together.
	Output string

	// ExitCode is the process exit status; zero means success.
	ExitCode int

	Duration time.Duration
}

// Succeeded reports whether the step exited zero.
func (r *Result) Succeeded() bool { return r.ExitCode == 0 }

// Runner executes the configure and build commands of one project.
type Runner struct {
	workDir   string
	configure []string
	build     []string
	timeout   time.Duration
}

// NewRunner creates a runner. Commands are argv slices; timeout applies to
// each invocation separately.
func NewRunner(workDir string, configure, build []string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Runner{
		workDir:   workDir,
		configure: configure,
		build:     build,
		timeout:   timeout,
	}
}

// Configure runs the configure step.
func (r *Runner) Configure(ctx context.Context) (*Result, error) {
	return r.run(ctx, r.configure)
}

// Build runs the build step.
func (r *Runner) Build(ctx context.Context) (*Result, error) {
	return r.run(ctx, r.build)
}

// run executes argv in the project directory. A non-zero exit is a normal
// Result, not an error; errors mean the step could not be run or timed out.
func (r *Runner) run(ctx context.Context, argv []string) (*Result, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty toolchain command")
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logging.Toolchain("running: %s", strings.Join(argv, " "))
	start := time.Now()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.workDir
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s: %s", ErrUnresponsive, r.timeout, strings.Join(argv, " "))
	}

	result := &Result{
		Command:  argv,
		Output:   string(output),
		Duration: elapsed,
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			// Binary missing, permission denied: the step never ran.
			return nil, fmt.Errorf("failed to run %s: %w", argv[0], err)
		}
	}

	logging.Toolchain("%s exited %d in %s (%d bytes of output)",
		argv[0], result.ExitCode, elapsed.Round(time.Millisecond), len(result.Output))
	return result, nil
}
